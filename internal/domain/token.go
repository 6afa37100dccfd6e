package domain

// NewTokenRecord represents a newly discovered token.
// Corresponds to tokens table. Immutable once stored.
type NewTokenRecord struct {
	ID      int64  // row id, assigned by storage
	Time    int64  // discovery timestamp (ms)
	Name    string // display name
	Mint    string // mint address (unique)
	Creator string // creator address
}
