package parser

import (
	"os"
	"strings"

	"pdf-rag/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func parseMarkdown(filePath string) ([]models.Document, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	content, err := markdownToText(src)
	if err != nil {
		return nil, err
	}
	return appendIfText(nil, content, filePath, noPage), nil
}

// markdownToText drops markup and keeps the readable text, with blocks
// separated by a blank line so the chunker can split on them.
func markdownToText(src []byte) (string, error) {
	root := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	endBlock := func() {
		s := b.String()
		if s == "" || strings.HasSuffix(s, "\n\n") {
			return
		}
		if strings.HasSuffix(s, "\n") {
			b.WriteString("\n")
			return
		}
		b.WriteString("\n\n")
	}

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				endBlock()
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
