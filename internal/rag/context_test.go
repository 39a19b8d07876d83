package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/orkio/orkio/pkg/models"
)

func match(content string, score float64) models.ChunkMatch {
	return models.ChunkMatch{
		Chunk:    models.Chunk{ID: "c1", DocumentID: "d1", ChunkIndex: 0, Content: content},
		Score:    score,
		Document: models.DocMeta{ID: "d1", Filename: "manual.pdf"},
	}
}

func TestBuildEmptyMatches(t *testing.T) {
	b := NewContextBuilder(500)
	block, citations := b.Build(nil)
	if block != "" {
		t.Fatalf("expected empty block, got %q", block)
	}
	if len(citations) != 0 {
		t.Fatalf("expected no citations, got %d", len(citations))
	}
}

func TestBuildFormatsSourcesInOrder(t *testing.T) {
	b := NewContextBuilder(500)
	matches := []models.ChunkMatch{
		match("primeiro trecho", 0.91),
		match("segundo trecho", 0.72),
	}
	block, citations := b.Build(matches)

	if !strings.Contains(block, strings.TrimSuffix(contextHeader, "\n")) {
		t.Fatal("block missing header")
	}
	if !strings.Contains(block, strings.TrimSuffix(contextFooter, "\n")) {
		t.Fatal("block missing footer")
	}
	if !strings.Contains(block, "[Fonte 1 | Relevância: 0.91]") {
		t.Fatalf("missing first source annotation in:\n%s", block)
	}
	if !strings.Contains(block, "[Fonte 2 | Relevância: 0.72]") {
		t.Fatalf("missing second source annotation in:\n%s", block)
	}
	if strings.Index(block, "primeiro trecho") > strings.Index(block, "segundo trecho") {
		t.Fatal("excerpts out of rank order")
	}
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
}

func TestBuildTruncatesLongChunks(t *testing.T) {
	maxChars := 50
	b := NewContextBuilder(maxChars)
	long := strings.Repeat("é", 400)
	block, _ := b.Build([]models.ChunkMatch{match(long, 0.8)})

	for _, line := range strings.Split(block, "\n") {
		if !strings.HasPrefix(line, "é") {
			continue
		}
		if !strings.HasSuffix(line, EllipsisMarker) {
			t.Fatalf("truncated excerpt missing ellipsis: %q", line)
		}
		if n := utf8.RuneCountInString(line); n != maxChars+len(EllipsisMarker) {
			t.Fatalf("excerpt rune length = %d, want %d", n, maxChars+len(EllipsisMarker))
		}
		return
	}
	t.Fatal("excerpt line not found in block")
}

func TestBuildShortChunkNotTruncated(t *testing.T) {
	b := NewContextBuilder(500)
	block, _ := b.Build([]models.ChunkMatch{match("curto", 0.8)})
	if strings.Contains(block, "curto"+EllipsisMarker) {
		t.Fatal("short excerpt must not carry an ellipsis")
	}
}

func TestBuildCitationRounding(t *testing.T) {
	b := NewContextBuilder(500)
	_, citations := b.Build([]models.ChunkMatch{match("x", 0.876543)})
	if citations[0].Relevance != 0.88 {
		t.Fatalf("relevance = %v, want 0.88", citations[0].Relevance)
	}
	if citations[0].DocumentTitle != "manual.pdf" {
		t.Fatalf("document title = %q", citations[0].DocumentTitle)
	}
}

func TestInject(t *testing.T) {
	prompt := "Você é um assistente."

	if got := Inject(prompt, ""); got != prompt {
		t.Fatalf("empty block must leave prompt untouched, got %q", got)
	}

	got := Inject(prompt, "BLOCO")
	if !strings.HasPrefix(got, prompt) {
		t.Fatal("injected prompt must keep the original prefix")
	}
	if !strings.Contains(got, "BLOCO") {
		t.Fatal("injected prompt missing context block")
	}
	if !strings.Contains(got, "INSTRUÇÕES PARA USO DO CONTEXTO") {
		t.Fatal("injected prompt missing usage instructions")
	}
}
