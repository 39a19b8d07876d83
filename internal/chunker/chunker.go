// Package chunker splits extracted document text into overlapping
// token-bounded segments for embedding and retrieval.
//
// Boundaries are computed on tokens (cl100k_base, the tokenizer family
// of the embedding models in use), not raw characters, so configured
// chunk sizes keep their meaning. Splitting is deterministic: the same
// text and configuration always produce the same segments, which keeps
// re-ingestion idempotent and audits reproducible.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ErrEmptyContent signals that a document had no extractable text.
// Callers transition the document to ERROR with reason "empty_content".
var ErrEmptyContent = errors.New("empty_content")

// Defaults applied by NewChunker when the config leaves them zero.
const (
	DefaultChunkSize = 800 // tokens
	DefaultOverlap   = 200 // tokens

	encodingName = "cl100k_base"
)

// Config configures the token chunker.
type Config struct {
	ChunkSize int // target chunk size in tokens
	Overlap   int // tokens shared between consecutive chunks
}

// DefaultConfig returns the deployment default chunking policy
// (800-token chunks with 200 tokens of overlap).
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

// Segment is one chunk of text with its token offsets in the source.
type Segment struct {
	Text       string `json:"text"`
	Index      int    `json:"index"` // 0-based, contiguous
	StartToken int    `json:"start_token"`
	EndToken   int    `json:"end_token"`
}

// Chunker splits text into overlapping token windows.
// Safe for concurrent use.
type Chunker struct {
	cfg Config
	enc *tiktoken.Tiktoken
}

// NewChunker validates the configuration and loads the tokenizer.
// Overlap >= ChunkSize is a configuration error: it would make the
// window stride non-positive and the split loop endless.
func NewChunker(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than chunk size %d", cfg.Overlap, cfg.ChunkSize)
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("chunker: load encoding %s: %w", encodingName, err)
	}
	return &Chunker{cfg: cfg, enc: enc}, nil
}

// Config returns the effective configuration after defaulting.
func (c *Chunker) Config() Config { return c.cfg }

// Split divides text into overlapping token windows.
// Returns ErrEmptyContent for empty or whitespace-only input.
func (c *Chunker) Split(text string) ([]Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, ErrEmptyContent
	}

	stride := c.cfg.ChunkSize - c.cfg.Overlap
	var segments []Segment
	for start := 0; start < len(tokens); start += stride {
		end := start + c.cfg.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		segments = append(segments, Segment{
			Text:       c.enc.Decode(tokens[start:end]),
			Index:      len(segments),
			StartToken: start,
			EndToken:   end,
		})
		if end == len(tokens) {
			break
		}
	}
	return segments, nil
}

// CountTokens returns the token length of text under the chunker's encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
