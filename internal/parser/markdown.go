package parser

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"study-buddy-rag/internal/models"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func parseMarkdown(filePath string) ([]models.TextUnit, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.TextUnit{{Text: markdownToText(src), PageNumber: defaultPageNumber}}, nil
}

// markdownToText drops markup and keeps the readable text. Block elements
// are separated by blank lines so the chunker sees them as paragraphs.
func markdownToText(src []byte) string {
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.Kind() {
			case ast.KindParagraph, ast.KindHeading, ast.KindList, ast.KindCodeBlock, ast.KindFencedCodeBlock, ast.KindThematicBreak, east.KindTable:
				b.WriteString("\n\n")
			case ast.KindTextBlock, east.KindTableRow, east.KindTableHeader:
				b.WriteString("\n")
			case east.KindTableCell:
				b.WriteString("\t")
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
		case *ast.CodeBlock, *ast.FencedCodeBlock:
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

	return collapseBlankLines(b.String())
}

// collapseBlankLines trims trailing spaces and squeezes runs of blank lines
// into a single paragraph break.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
