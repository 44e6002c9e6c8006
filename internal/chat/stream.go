package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/dshills/docreview/internal/agent"
)

// Frame type prefixes of the line-oriented data stream.
const (
	FrameText       = '0'
	FrameError      = '3'
	FrameToolCall   = '9'
	FrameToolResult = 'a'
	FrameStepFinish = 'e'
	FrameFinish     = 'd'
)

// Writer emits data stream frames, one per line. It is safe for
// concurrent use; frames are never interleaved.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a frame writer over w. If w has a Flush method it is
// called after every frame.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

type toolCall struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Args       any    `json:"args"`
}

type toolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type stepFinish struct {
	FinishReason agent.FinishReason `json:"finishReason"`
	Usage        agent.Usage        `json:"usage"`
	IsContinued  bool               `json:"isContinued"`
}

type finish struct {
	FinishReason agent.FinishReason `json:"finishReason"`
	Usage        agent.Usage        `json:"usage"`
}

// Text writes a text delta.
func (w *Writer) Text(delta string) error { return w.frame(FrameText, delta) }

// Error writes an error message.
func (w *Writer) Error(msg string) error { return w.frame(FrameError, msg) }

// ToolCall announces a tool invocation.
func (w *Writer) ToolCall(id, name string, args any) error {
	return w.frame(FrameToolCall, toolCall{ToolCallID: id, ToolName: name, Args: args})
}

// ToolResult reports the result of a tool invocation.
func (w *Writer) ToolResult(id string, result any) error {
	return w.frame(FrameToolResult, toolResult{ToolCallID: id, Result: result})
}

// StepFinish ends one step of the turn.
func (w *Writer) StepFinish(reason agent.FinishReason, usage agent.Usage, isContinued bool) error {
	return w.frame(FrameStepFinish, stepFinish{FinishReason: reason, Usage: usage, IsContinued: isContinued})
}

// Finish ends the turn.
func (w *Writer) Finish(reason agent.FinishReason, usage agent.Usage) error {
	return w.frame(FrameFinish, finish{FinishReason: reason, Usage: usage})
}

func (w *Writer) frame(kind byte, payload any) error {
	var buf bytes.Buffer
	buf.WriteByte(kind)
	buf.WriteByte(':')
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the line.
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encoding %c frame: %w", kind, err)
	}

	line := rawLineSeparators(buf.Bytes())

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	switch f := w.w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}

// rawLineSeparators undoes encoding/json's \u2028 and \u2029 escapes so
// frames match JSON.stringify output byte for byte.
func rawLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 == len(b) {
			out = append(out, b[i])
			continue
		}
		if rest := b[i+1:]; len(rest) >= 5 && string(rest[:4]) == "u202" && (rest[4] == '8' || rest[4] == '9') {
			r := '\u2028'
			if rest[4] == '9' {
				r = '\u2029'
			}
			out = utf8.AppendRune(out, r)
			i += 5
			continue
		}
		// Copy the whole escape so an escaped backslash is not rescanned.
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

// Frame is one decoded stream line.
type Frame struct {
	Type    byte
	Payload json.RawMessage
}

// DecodeFrame parses one line (without its newline).
func DecodeFrame(line []byte) (Frame, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) < 2 || line[1] != ':' {
		return Frame{}, fmt.Errorf("malformed frame %q", line)
	}
	payload := line[2:]
	if !json.Valid(payload) {
		return Frame{}, fmt.Errorf("malformed %c frame payload", line[0])
	}
	return Frame{Type: line[0], Payload: json.RawMessage(payload)}, nil
}

// TextDelta returns the text of a text frame.
func (f Frame) TextDelta() (string, error) {
	if f.Type != FrameText && f.Type != FrameError {
		return "", fmt.Errorf("frame %c is not a text frame", f.Type)
	}
	var s string
	err := json.Unmarshal(f.Payload, &s)
	return s, err
}
