package vectorstore

import "fmt"

// DimensionMismatchError reports a query or chunk embedding whose
// dimension disagrees with the dimension the store was provisioned for.
// Comparing vectors of different dimensions is meaningless, so the
// store fails loud instead of silently skipping or silently scoring.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vectorstore: embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}
