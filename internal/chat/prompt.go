package chat

import (
	"fmt"
	"strings"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/review"
)

// Agent ids used by chat.
const (
	AgentPlanner    = "researchPlanner"
	AgentResearcher = "documentResearcher"
	AgentAnswerer   = "chatAnswerer"
)

// researchTool is the tool name announced in tool-call frames.
const researchTool = "researchDocument"

// Agents returns the definitions of every chat agent.
func Agents() []agent.Definition {
	return []agent.Definition{
		{
			ID:        AgentPlanner,
			MaxTokens: 2048,
			Instructions: `You plan research for answering a question about a set of documents.
For each document that may contain relevant information, write one focused research instruction.
Return no tasks when the conversation already contains the answer.
Respond with ONLY a JSON object: {"tasks":[{"documentId":"...","instruction":"..."}]}`,
		},
		{
			ID:        AgentResearcher,
			MaxTokens: 4096,
			Instructions: `You research one document. Follow the instruction and report every relevant fact with its location in the document.
Say plainly when the document contains nothing relevant.`,
		},
		{
			ID:        AgentAnswerer,
			MaxTokens: 4096,
			Instructions: `You answer the user's question using the research notes provided. Cite document names.
If the notes do not contain the answer, say so instead of guessing.`,
		},
	}
}

type task struct {
	DocumentID  string `json:"documentId"`
	Instruction string `json:"instruction"`
}

type planOutput struct {
	Tasks []task `json:"tasks"`
}

var planSchema = agent.ObjectSchema(map[string]any{
	"tasks": agent.ArrayOf(agent.ObjectSchema(map[string]any{
		"documentId":  agent.Type("string"),
		"instruction": agent.Type("string"),
	})),
})

func writeHistory(b *strings.Builder, history []Turn) {
	if len(history) == 0 {
		return
	}
	b.WriteString("Conversation so far:\n")
	for _, t := range history {
		fmt.Fprintf(b, "%s: %s\n", t.Role, t.Content)
	}
	b.WriteString("\n")
}

func planMessage(req Request, docs []review.Document) agent.Message {
	var b strings.Builder
	writeHistory(&b, req.History)
	b.WriteString("Documents:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- id %s: %s (%s, %d %s)\n", d.ID, d.Name, d.Type, d.Units(), unitName(d))
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Question)
	return agent.Message{Text: b.String()}
}

func unitName(d review.Document) string {
	if len(d.Images) > 0 {
		return "pages"
	}
	return "characters"
}

func researchMessage(c review.Chunk, instruction string) agent.Message {
	d := c.Document()
	var b strings.Builder
	fmt.Fprintf(&b, "<document name=%q", d.Name)
	if c.Total > 1 {
		fmt.Fprintf(&b, " part=\"%d/%d\"", c.Index+1, c.Total)
	}
	b.WriteString(">\n")
	if len(d.Images) > 0 {
		fmt.Fprintf(&b, "(%d page images attached)\n", len(d.Images))
	} else {
		b.WriteString(d.Text)
		b.WriteString("\n")
	}
	b.WriteString("</document>\n\nInstruction: ")
	b.WriteString(instruction)
	return agent.Message{Text: b.String(), Images: d.Images}
}

func answerMessage(req Request, notes []string) agent.Message {
	var b strings.Builder
	writeHistory(&b, req.History)
	if len(notes) > 0 {
		b.WriteString("Research notes:\n\n")
		b.WriteString(strings.Join(notes, "\n\n"))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	return agent.Message{Text: b.String()}
}
