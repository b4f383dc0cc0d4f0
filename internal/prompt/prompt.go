// Package prompt renders retrieved chunks into the cited context block and
// the final instruction prompt.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"study-buddy-rag/internal/models"
)

// BuildContext renders each chunk as "[Source N]" or "[Source N, Page P]"
// followed by its text. N is the chunk's rank.
func BuildContext(chunks []models.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, rc := range chunks {
		n := rc.Rank
		if n == 0 {
			n = i + 1
		}
		var b strings.Builder
		b.WriteString("[Source ")
		b.WriteString(strconv.Itoa(n))
		if rc.Chunk.PageNumber > 0 {
			b.WriteString(", Page ")
			b.WriteString(strconv.Itoa(rc.Chunk.PageNumber))
		}
		b.WriteString("]:\n")
		b.WriteString(rc.Chunk.Content)
		b.WriteString("\n")
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt fills models.PromptTemplate.
func BuildPrompt(query, context string) string {
	return fmt.Sprintf(models.PromptTemplate, context, query)
}
