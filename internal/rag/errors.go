package rag

import "fmt"

// RetrievalError wraps a failure inside the retrieval pipeline (query
// embedding or vector search). The chat layer decides whether to
// proceed without context or abort the turn.
type RetrievalError struct {
	Stage string // "embed" or "search"
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// TenantScopeError reports the invariant violation of a search result
// belonging to a different tenant than the requester. The vector store
// makes this structurally impossible; this is the retriever's
// last-line assertion. It aborts the request entirely — the offending
// results are never returned to the caller.
type TenantScopeError struct {
	TenantID      string
	ChunkTenantID string
	ChunkID       string
}

func (e *TenantScopeError) Error() string {
	return fmt.Sprintf("tenant scope violation: search for tenant %s returned chunk %s of tenant %s",
		e.TenantID, e.ChunkID, e.ChunkTenantID)
}
