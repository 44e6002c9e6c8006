package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// markdownText flattens a Markdown document to plain text. Headings keep
// their level marker, list items get a bullet, table cells are separated by
// " | " and code blocks are kept verbatim.
func markdownText(src []byte) string {
	doc := markdownParser.Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.Heading:
			if entering {
				b.WriteString(strings.Repeat("#", n.Level) + " ")
			} else {
				b.WriteString("\n\n")
			}
		case *ast.Paragraph, *ast.TextBlock:
			if entering {
				break
			}
			if p := n.Parent(); p != nil && p.Kind() == ast.KindListItem {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		case *ast.ListItem:
			if entering {
				b.WriteString("- ")
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				b.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			if entering {
				b.Write(n.Segment.Value(src))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.AutoLink:
			if entering {
				b.Write(n.URL(src))
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *east.TableCell:
			if !entering {
				b.WriteString(" | ")
			}
		case *east.TableHeader, *east.TableRow:
			if !entering {
				b.WriteString("\n")
			}
		case *east.Table:
			if !entering {
				b.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String()) + "\n"
}
