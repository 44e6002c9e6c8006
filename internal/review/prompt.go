package review

import (
	"fmt"
	"strings"

	"github.com/dshills/docreview/internal/agent"
)

// Agent ids used by the review pipeline.
const (
	AgentCategorizer  = "checklistCategorizer"
	AgentReviewer     = "documentReviewer"
	AgentTopics       = "topicExtractor"
	AgentReadiness    = "readinessChecker"
	AgentAnswerer     = "questionAnswerer"
	AgentDocChecker   = "documentChecker"
	AgentConsolidator = "reviewConsolidator"
)

const jsonOnly = "Respond with ONLY a JSON object matching the requested structure. No markdown, no explanation."

// Agents returns the definitions of every review agent.
func Agents() []agent.Definition {
	return []agent.Definition{
		{
			ID:        AgentCategorizer,
			MaxTokens: 4096,
			Instructions: `You group review checklist items into categories of related items.
Every checklist id must be assigned to exactly one category. Respect the limits given below.
` + jsonOnly + `
Structure: {"categories":[{"name":"...","checklistIds":[1,2]}]}`,
		},
		{
			ID:        AgentReviewer,
			MaxTokens: 8192,
			Instructions: `You are a meticulous document reviewer. Evaluate the attached documents against each checklist item.
Base every judgement only on the documents. Quote or cite the relevant passage in the comment when possible.
` + jsonOnly + `
Structure: {"results":[{"checklistId":1,"evaluation":"A","comment":"..."}]}`,
		},
		{
			ID:        AgentTopics,
			MaxTokens: 4096,
			Instructions: `You read a document and list its main topics, each with a short factual summary.
` + jsonOnly + `
Structure: {"topics":[{"topic":"...","summary":"..."}]}`,
		},
		{
			ID:        AgentReadiness,
			MaxTokens: 4096,
			Instructions: `You decide whether the collected document summaries and answers are enough to review every checklist item.
If they are not, ask focused follow-up questions addressed to specific documents.
` + jsonOnly + `
Structure: {"ready":false,"questions":[{"documentId":"...","question":"..."}]}`,
		},
		{
			ID:        AgentAnswerer,
			MaxTokens: 4096,
			Instructions: `You answer questions about the attached document. Answer only from the document and say so when it does not contain the answer.
` + jsonOnly + `
Structure: {"answers":[{"question":"...","answer":"..."}]}`,
		},
		{
			ID:        AgentDocChecker,
			MaxTokens: 8192,
			Instructions: `You review one document against each checklist item and write a comment describing what the document says about it.
Do not assign an evaluation; that happens later. Mention when the document does not address an item.
` + jsonOnly + `
Structure: {"comments":[{"checklistId":1,"comment":"..."}]}`,
		},
		{
			ID:        AgentConsolidator,
			MaxTokens: 8192,
			Instructions: `You consolidate per-document review comments into one final evaluation and comment per checklist item.
Weigh all documents together. Use only the allowed evaluation labels.
` + jsonOnly + `
Structure: {"results":[{"checklistId":1,"evaluation":"A","comment":"..."}]}`,
		},
	}
}

// checklistSettings are the per-call settings of every checklist-scoped
// agent.
type checklistSettings struct {
	Checklists             []ChecklistItem
	Labels                 []EvaluationLabel
	CommentFormat          string
	AdditionalInstructions string
}

func (s checklistSettings) render() string {
	var b strings.Builder
	b.WriteString("Checklist items:\n")
	for _, c := range s.Checklists {
		fmt.Fprintf(&b, "- [%d] %s\n", c.ID, c.Content)
	}
	if len(s.Labels) > 0 {
		b.WriteString("\nEvaluation labels:\n")
		for _, l := range s.Labels {
			fmt.Fprintf(&b, "- %s: %s\n", l.Label, l.Description)
		}
	}
	if s.CommentFormat != "" {
		fmt.Fprintf(&b, "\nWrite each comment in this format:\n%s\n", s.CommentFormat)
	}
	if s.AdditionalInstructions != "" {
		fmt.Fprintf(&b, "\nAdditional instructions:\n%s\n", s.AdditionalInstructions)
	}
	return b.String()
}

type categorizeSettings struct {
	MaxCategories  int
	MaxPerCategory int
}

func (s categorizeSettings) render() string {
	var b strings.Builder
	if s.MaxCategories > 0 {
		fmt.Fprintf(&b, "Create at most %d categories.\n", s.MaxCategories)
	}
	fmt.Fprintf(&b, "Put at most %d checklist items in one category.\n", s.MaxPerCategory)
	return b.String()
}

type documentSettings struct {
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	TotalChunks  int
}

func (s documentSettings) render() string {
	if s.TotalChunks > 1 {
		return fmt.Sprintf("Document: %s (id %s), part %d of %d. Other parts are reviewed separately.\n",
			s.DocumentName, s.DocumentID, s.ChunkIndex+1, s.TotalChunks)
	}
	return fmt.Sprintf("Document: %s (id %s)\n", s.DocumentName, s.DocumentID)
}

func joinSettings(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// Output shapes and their schemas.

type evaluatedItem struct {
	ChecklistID int    `json:"checklistId"`
	Evaluation  string `json:"evaluation"`
	Comment     string `json:"comment"`
}

type evaluatedOutput struct {
	Results []evaluatedItem `json:"results"`
}

func evaluatedSchema(labels []EvaluationLabel) map[string]any {
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = l.Label
	}
	return agent.ObjectSchema(map[string]any{
		"results": agent.ArrayOf(agent.ObjectSchema(map[string]any{
			"checklistId": agent.Type("integer"),
			"evaluation":  agent.Enum(values...),
			"comment":     agent.Type("string"),
		})),
	})
}

type categoryOutput struct {
	Categories []struct {
		Name         string `json:"name"`
		ChecklistIDs []int  `json:"checklistIds"`
	} `json:"categories"`
}

var categorySchema = agent.ObjectSchema(map[string]any{
	"categories": agent.ArrayOf(agent.ObjectSchema(map[string]any{
		"name":         agent.Type("string"),
		"checklistIds": agent.ArrayOf(agent.Type("integer")),
	})),
})

// Topic is one entry of a document summary.
type Topic struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
}

type topicOutput struct {
	Topics []Topic `json:"topics"`
}

var topicSchema = agent.ObjectSchema(map[string]any{
	"topics": agent.ArrayOf(agent.ObjectSchema(map[string]any{
		"topic":   agent.Type("string"),
		"summary": agent.Type("string"),
	})),
})

type question struct {
	DocumentID string `json:"documentId"`
	Question   string `json:"question"`
}

type readinessOutput struct {
	Ready     bool       `json:"ready"`
	Questions []question `json:"questions"`
}

var readinessSchema = agent.ObjectSchema(map[string]any{
	"ready": agent.Type("boolean"),
	"questions": agent.ArrayOf(agent.ObjectSchema(map[string]any{
		"documentId": agent.Type("string"),
		"question":   agent.Type("string"),
	})),
})

// QA is one answered follow-up question.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type answerOutput struct {
	Answers []QA `json:"answers"`
}

var answerSchema = agent.ObjectSchema(map[string]any{
	"answers": agent.ArrayOf(agent.ObjectSchema(map[string]any{
		"question": agent.Type("string"),
		"answer":   agent.Type("string"),
	})),
})

type commentItem struct {
	ChecklistID int    `json:"checklistId"`
	Comment     string `json:"comment"`
}

type commentOutput struct {
	Comments []commentItem `json:"comments"`
}

var commentSchema = agent.ObjectSchema(map[string]any{
	"comments": agent.ArrayOf(agent.ObjectSchema(map[string]any{
		"checklistId": agent.Type("integer"),
		"comment":     agent.Type("string"),
	})),
})
