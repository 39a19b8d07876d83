package rag

// Decision is the circuit breaker's verdict for one chat turn.
type Decision int

const (
	// Proceed allows the LLM call.
	Proceed Decision = iota
	// Block forbids the LLM call: the agent answers only from its
	// knowledge base and retrieval found nothing to ground a reply on.
	Block
)

func (d Decision) String() string {
	if d == Block {
		return "BLOCK"
	}
	return "PROCEED"
}

// BlockedReply is the fixed user-facing message returned in place of a
// model answer when the breaker fires. The response carries a separate
// circuit-breaker flag so the caller UI can offer linking documents.
const BlockedReply = "Não encontrei informações relevantes na base de conhecimento para responder com segurança. Deseja vincular documentos ao agente?"

// Decide evaluates the breaker: Block iff the agent is RAG-only
// (use_rag and no fallback) and retrieval produced zero hits.
// Preventing an ungrounded answer here is deliberate safety behavior.
func Decide(useRAG bool, hitCount int, fallbackAllowed bool) Decision {
	if useRAG && hitCount == 0 && !fallbackAllowed {
		return Block
	}
	return Proceed
}
