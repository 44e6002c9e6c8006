package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/chat"
)

var (
	flagChatRaw     bool
	flagChatHistory string
)

var chatCmd = &cobra.Command{
	Use:   "chat <run-id> <question>",
	Short: "Ask a question about the documents of a run",
	Long: "Ask a question about the documents of a reviewed run. The answer is streamed " +
		"to stdout; --raw emits the line-oriented data stream instead of plain text.",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		history, err := loadHistory(flagChatHistory)
		if err != nil {
			return fail(err)
		}
		a, err := openApp(ctx, true)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		var out io.Writer = os.Stdout
		var r *frameRenderer
		if !flagChatRaw {
			r = &frameRenderer{out: os.Stdout, status: os.Stderr}
			out = r
		}
		w := chat.NewWriter(out)

		_, err = a.chatService().Ask(ctx, chat.Request{
			RunID:    args[0],
			Question: strings.Join(args[1:], " "),
			History:  history,
		}, w)
		if r != nil {
			fmt.Fprintln(os.Stdout)
		}
		if err != nil {
			// The error frame already carries the message.
			exitCode = exitFor(err)
		}
		return nil
	},
}

// loadHistory reads prior turns from a JSON array of {role, content}.
func loadHistory(path string) ([]chat.Turn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var turns []chat.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return turns, nil
}

// frameRenderer turns data stream frames into plain terminal output:
// text deltas go to out, research progress and errors to status.
type frameRenderer struct {
	out    io.Writer
	status io.Writer
	buf    bytes.Buffer
}

func (r *frameRenderer) Write(p []byte) (int, error) {
	r.buf.Write(p)
	for {
		line, err := r.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write.
			r.buf.Write(line)
			break
		}
		if err := r.render(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (r *frameRenderer) render(line []byte) error {
	f, err := chat.DecodeFrame(line)
	if err != nil {
		return err
	}
	switch f.Type {
	case chat.FrameText:
		s, err := f.TextDelta()
		if err != nil {
			return err
		}
		_, err = io.WriteString(r.out, s)
		return err
	case chat.FrameError:
		s, err := f.TextDelta()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(r.status, "Error: %s\n", s)
		return err
	case chat.FrameToolCall:
		var call struct {
			ToolName string `json:"toolName"`
			Args     struct {
				DocumentID  string `json:"documentId"`
				Instruction string `json:"instruction"`
			} `json:"args"`
		}
		if err := json.Unmarshal(f.Payload, &call); err != nil {
			return err
		}
		_, err := fmt.Fprintf(r.status, "… %s %s: %s\n", call.ToolName, call.Args.DocumentID, call.Args.Instruction)
		return err
	}
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama)")
	chatCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	chatCmd.Flags().BoolVar(&flagChatRaw, "raw", false, "Emit raw data stream frames")
	chatCmd.Flags().StringVar(&flagChatHistory, "history", "", "JSON file of prior turns")
}
