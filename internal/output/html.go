package output

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

const htmlHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.3em 0.6em; }
blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1em; color: #444; }
</style>
</head>
<body>
`

// HTMLWriter renders the markdown report as a standalone HTML page.
type HTMLWriter struct{}

func (h *HTMLWriter) Write(w io.Writer, report *Report) error {
	src, err := markdownString(report)
	if err != nil {
		return err
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(htmlrenderer.WithUnsafe()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(src), &body); err != nil {
		return fmt.Errorf("rendering HTML: %w", err)
	}

	ew := &errWriter{w: w}
	ew.printf(htmlHead, html.EscapeString("Document Review: "+report.Run.Name))
	ew.printf("%s", body.String())
	ew.println("</body>\n</html>")
	return ew.err
}
