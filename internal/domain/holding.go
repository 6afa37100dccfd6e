package domain

// HoldingRecord represents one trading position opened by a confirmed buy swap.
// Corresponds to holdings table.
type HoldingRecord struct {
	ID               int64    // row id, assigned by storage
	Time             int64    // acquisition timestamp (ms)
	Token            string   // token mint address
	TokenName        string   // display name ("N/A" when unknown)
	Balance          float64  // token quantity held
	SolPaid          float64  // SOL spent on the buy
	SolFeePaid       float64  // SOL spent on fees
	SolPaidUSDC      *float64 // USD value paid (nullable while position open)
	SolFeePaidUSDC   float64  // USD value of fees
	PerTokenPaidUSDC float64  // USD cost basis per token
	Slot             int64    // Solana slot of the buy
	Program          string   // originating program / venue
	WalletAddress    string   // owner wallet (optional)
}

// DisplayName returns TokenName, falling back to the mint when the name is unknown.
func (h *HoldingRecord) DisplayName() string {
	if h.TokenName == "" || h.TokenName == "N/A" {
		return h.Token
	}
	return h.TokenName
}
