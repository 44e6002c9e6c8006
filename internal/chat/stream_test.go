package chat

import (
	"bufio"
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/docreview/internal/agent"
)

func TestWriter_Frames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	steps := []func() error{
		func() error { return w.ToolCall("research-1", "researchDocument", map[string]string{"documentId": "1"}) },
		func() error { return w.ToolResult("research-1", "found <it> & more") },
		func() error { return w.StepFinish("tool-calls", agent.Usage{PromptTokens: 10, CompletionTokens: 2}, false) },
		func() error { return w.Text("Hello, \"world\"\n") },
		func() error { return w.StepFinish(agent.FinishStop, agent.Usage{PromptTokens: 5, CompletionTokens: 7}, false) },
		func() error { return w.Finish(agent.FinishStop, agent.Usage{PromptTokens: 15, CompletionTokens: 9}) },
	}
	for _, s := range steps {
		if err := s(); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	want := `9:{"toolCallId":"research-1","toolName":"researchDocument","args":{"documentId":"1"}}
a:{"toolCallId":"research-1","result":"found <it> & more"}
e:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":2},"isContinued":false}
0:"Hello, \"world\"\n"
e:{"finishReason":"stop","usage":{"promptTokens":5,"completionTokens":7},"isContinued":false}
d:{"finishReason":"stop","usage":{"promptTokens":15,"completionTokens":9}}
`
	if got := buf.String(); got != want {
		t.Errorf("frames =\n%s\nwant\n%s", got, want)
	}
}

func TestWriter_LineSeparatorsUnescaped(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\u2028b\u2029c", "0:\"a\u2028b\u2029c\"\n"},
		{`\u2028`, `0:"\\u2028"` + "\n"},
		{"plain", "0:\"plain\"\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := NewWriter(&buf).Text(tt.in); err != nil {
			t.Fatalf("Text(%q): %v", tt.in, err)
		}
		if got := buf.String(); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriter_ErrorFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Error("boom"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "3:\"boom\"\n" {
		t.Errorf("error frame = %q", got)
	}
}

func TestWriter_FlushesBufferedWriter(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := NewWriter(bw).Text("x"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "0:\"x\"\n" {
		t.Errorf("frame not flushed: %q", buf.String())
	}
}

func TestWriter_ConcurrentFramesNotInterleaved(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Text(strings.Repeat("y", 100))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, l := range lines {
		f, err := DecodeFrame([]byte(l))
		if err != nil {
			t.Fatalf("DecodeFrame(%q): %v", l, err)
		}
		if s, _ := f.TextDelta(); len(s) != 100 {
			t.Errorf("delta length = %d, want 100", len(s))
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte("0:\"hi\"\r\n"))
	if err != nil {
		t.Fatalf("DecodeFrame error: %v", err)
	}
	if f.Type != FrameText {
		t.Errorf("Type = %c, want 0", f.Type)
	}
	if s, err := f.TextDelta(); err != nil || s != "hi" {
		t.Errorf("TextDelta = %q, %v", s, err)
	}

	for _, bad := range []string{"", "0", "0-\"x\"", "0:{not json"} {
		if _, err := DecodeFrame([]byte(bad)); err == nil {
			t.Errorf("DecodeFrame(%q) succeeded, want error", bad)
		}
	}

	f, _ = DecodeFrame([]byte(`d:{"finishReason":"stop"}`))
	if _, err := f.TextDelta(); err == nil {
		t.Error("TextDelta on finish frame should fail")
	}
}
