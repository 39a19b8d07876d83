package rag

import (
	"fmt"
	"math"
	"strings"

	"github.com/orkio/orkio/pkg/models"
)

// Context block markers and the instruction suffix appended on
// injection. The suffix is part of the agent's hallucination control
// (summarize, cite, admit absence), not cosmetic framing.
const (
	contextHeader = "=== Base de Conhecimento Relevante ===\n"
	contextFooter = "=== Fim da Base de Conhecimento ===\n"

	usageInstructions = "INSTRUÇÕES PARA USO DO CONTEXTO:\n" +
		"1. Resuma e sintetize, não copie literalmente.\n" +
		"2. Cite as fontes quando usar a informação.\n" +
		"3. Se o contexto não for suficiente, informe que não encontrou a resposta na base de conhecimento."

	// EllipsisMarker terminates truncated chunk excerpts.
	EllipsisMarker = "..."

	// DefaultMaxCharsPerChunk bounds each chunk's excerpt in the block.
	DefaultMaxCharsPerChunk = 500
)

// ContextBuilder formats retrieval hits into a bounded context block
// for prompt injection and produces the matching citations.
type ContextBuilder struct {
	maxCharsPerChunk int
}

// NewContextBuilder creates a builder truncating each chunk excerpt to
// maxCharsPerChunk characters (rune-counted).
func NewContextBuilder(maxCharsPerChunk int) *ContextBuilder {
	if maxCharsPerChunk <= 0 {
		maxCharsPerChunk = DefaultMaxCharsPerChunk
	}
	return &ContextBuilder{maxCharsPerChunk: maxCharsPerChunk}
}

// Build renders the delimited context block with 1-based source
// indexes and relevance scores, plus one citation per included chunk.
// Empty input produces an empty block and no citations.
func (b *ContextBuilder) Build(matches []models.ChunkMatch) (string, []models.Citation) {
	if len(matches) == 0 {
		return "", nil
	}

	parts := []string{contextHeader}
	citations := make([]models.Citation, 0, len(matches))

	for i, m := range matches {
		excerpt := truncate(m.Chunk.Content, b.maxCharsPerChunk)
		parts = append(parts, fmt.Sprintf("[Fonte %d | Relevância: %.2f]", i+1, m.Score))
		parts = append(parts, excerpt)
		parts = append(parts, "")

		citations = append(citations, models.Citation{
			DocumentID:    m.Document.ID,
			DocumentTitle: m.Document.Filename,
			ChunkID:       m.Chunk.ID,
			ChunkIndex:    m.Chunk.ChunkIndex,
			Relevance:     math.Round(m.Score*100) / 100,
		})
	}

	parts = append(parts, contextFooter)
	return strings.Join(parts, "\n"), citations
}

// Inject appends the context block and usage instructions to the
// agent's system prompt. A no-op when the block is empty.
func Inject(systemPrompt, contextBlock string) string {
	if contextBlock == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + contextBlock + "\n\n" + usageInstructions
}

// truncate cuts s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + EllipsisMarker
}
