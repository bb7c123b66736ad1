package pullrequest

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// SplitDescription returns the title and body of a markdown description.
// The title is the first level-one ATX heading, whose line is removed from
// the body. Without such a heading the title is empty and the body is the
// whole document.
func SplitDescription(source []byte) (title, body string) {
	doc := markdown.Parser().Parse(text.NewReader(source))

	var heading *ast.Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			heading = h
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if heading == nil || heading.Lines().Len() == 0 {
		return "", strings.TrimSpace(string(source))
	}

	title = strings.TrimSpace(nodeText(heading, source))

	seg := heading.Lines().At(0)
	start := bytes.LastIndexByte(source[:seg.Start], '\n') + 1
	if !bytes.HasPrefix(bytes.TrimLeft(source[start:seg.Start], " "), []byte("#")) {
		// Setext heading; keep the document intact.
		return title, strings.TrimSpace(string(source))
	}
	end := len(source)
	if i := bytes.IndexByte(source[seg.Stop:], '\n'); i >= 0 {
		end = seg.Stop + i + 1
	}

	rest := make([]byte, 0, len(source))
	rest = append(rest, source[:start]...)
	rest = append(rest, source[end:]...)
	return title, strings.TrimSpace(string(rest))
}

// nodeText concatenates the text content under n.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(nodeText(c, source))
		}
	}
	return b.String()
}

// firstLine returns the first non-empty line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
