package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Document is markdown reduced to the plain text that enrichment consumes.
type Document struct {
	Title   string   // First top-level heading, if any
	Outline []string // Heading hierarchy: "Getting Started > Installation"
	Text    string   // Prose without markup, one block per paragraph
}

// Extractor converts markdown sources to plain text.
type Extractor struct {
	parser goldmark.Markdown
}

// NewExtractor creates an Extractor configured with the goldmark parser.
func NewExtractor() *Extractor {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Extractor{parser: md}
}

// Extract parses source and returns its title, outline and plain text.
// Markup, link targets and raw HTML are dropped; code blocks are kept verbatim.
func (e *Extractor) Extract(source []byte) (*Document, error) {
	doc := e.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true), // Remove empty items
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	out := &Document{}
	collectOutline(tree.Items, nil, &out.Outline)
	if len(tree.Items) > 0 {
		out.Title = string(tree.Items[0].Title)
	}

	var buf strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && n.Kind() != ast.KindList {
				endBlock(&buf)
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			switch {
			case node.HardLineBreak():
				buf.WriteByte('\n')
			case node.SoftLineBreak():
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			buf.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	out.Text = strings.TrimSpace(buf.String())
	return out, nil
}

// endBlock terminates the current block with a blank line, once.
func endBlock(buf *strings.Builder) {
	s := buf.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		buf.WriteByte('\n')
		return
	}
	buf.WriteString("\n\n")
}

// collectOutline flattens TOC items into "Parent > Child" paths.
func collectOutline(items toc.Items, ancestors []string, out *[]string) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))
		*out = append(*out, strings.Join(path, " > "))
		collectOutline(item.Items, path, out)
	}
}
