package rag

import "testing"

func TestDecide(t *testing.T) {
	cases := []struct {
		name            string
		useRAG          bool
		hits            int
		fallbackAllowed bool
		want            Decision
	}{
		{"rag only, zero hits", true, 0, false, Block},
		{"rag only, one hit", true, 1, false, Proceed},
		{"rag with fallback, zero hits", true, 0, true, Proceed},
		{"rag disabled, zero hits", false, 0, false, Proceed},
		{"rag disabled, fallback irrelevant", false, 0, true, Proceed},
		{"many hits", true, 7, false, Proceed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.useRAG, tc.hits, tc.fallbackAllowed)
			if got != tc.want {
				t.Fatalf("Decide(%v, %d, %v) = %v, want %v", tc.useRAG, tc.hits, tc.fallbackAllowed, got, tc.want)
			}
		})
	}
}

func TestDecisionString(t *testing.T) {
	if Block.String() != "BLOCK" {
		t.Fatalf("Block.String() = %q", Block.String())
	}
	if Proceed.String() != "PROCEED" {
		t.Fatalf("Proceed.String() = %q", Proceed.String())
	}
}
