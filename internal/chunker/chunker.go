// Package chunker splits extracted document text into bounded, overlapping
// chunks with a stable per-document index.
//
// Paragraph breaks are hard boundaries: a paragraph that fits in the chunk
// size (inclusive) becomes exactly one chunk. Longer paragraphs are split
// recursively on line breaks, sentence ends, spaces and finally single
// characters, and the pieces are merged back up to the chunk size with the
// configured overlap between neighbours. Lengths are counted in runes.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"study-buddy-rag/internal/models"
)

const (
	paragraphSeparator = "\n\n"
	// sentenceBreak stands in for the space after a sentence end while
	// splitting, so the period stays with the sentence it closes. It has the
	// same rune length as the space it replaces.
	sentenceBreak = "\x1e"
)

// separators used inside a paragraph, largest boundary first
var separators = []string{"\n", sentenceBreak, " ", ""}

type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithKeepSeparator(true),
		),
	}, nil
}

// Chunk splits units in order. ChunkIndex starts at 0 and is only assigned
// to emitted, non-blank chunks, so indexes are contiguous. The returned
// chunks carry no document, owner or embedding yet.
func (c *Chunker) Chunk(units []models.TextUnit) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, unit := range units {
		pieces, err := c.split(unit.Text)
		if err != nil {
			return nil, err
		}
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				ChunkIndex: len(chunks),
				Content:    piece,
				PageNumber: unit.PageNumber,
			})
		}
	}
	return chunks, nil
}

func (c *Chunker) split(text string) ([]string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, paragraph := range strings.Split(text, paragraphSeparator) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if utf8.RuneCountInString(paragraph) <= c.size {
			out = append(out, paragraph)
			continue
		}
		pieces, err := c.splitter.SplitText(markSentences(paragraph))
		if err != nil {
			return nil, fmt.Errorf("failed to split paragraph: %v", err)
		}
		for _, p := range pieces {
			out = append(out, strings.TrimSpace(strings.ReplaceAll(p, sentenceBreak, " ")))
		}
	}
	return out, nil
}

func markSentences(paragraph string) string {
	paragraph = strings.ReplaceAll(paragraph, sentenceBreak, " ")
	return strings.ReplaceAll(paragraph, ". ", "."+sentenceBreak)
}
