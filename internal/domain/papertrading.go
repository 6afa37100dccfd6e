package domain

// TradeType is the side of a simulated trade.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// IsValid checks if the trade type is buy or sell.
func (t TradeType) IsValid() bool {
	return t == TradeTypeBuy || t == TradeTypeSell
}

// VirtualBalance is one snapshot of the paper-trading ledger.
// The row with the highest ID is the current balance.
type VirtualBalance struct {
	ID         int64
	BalanceSOL float64
	UpdatedAt  int64 // ms
}

// SimulatedTrade is an immutable paper-trading buy or sell event.
type SimulatedTrade struct {
	ID            int64     // row id, assigned by storage
	TradeID       string    // idempotency key (unique)
	Timestamp     int64     // ms
	TokenMint     string    // token mint address
	TokenName     string    // display name
	AmountSOL     float64   // SOL value of the trade
	AmountToken   float64   // token quantity
	PricePerToken float64   // execution price
	Type          TradeType // buy | sell
	Fees          float64   // SOL fees
}

// TokenTracking is an open simulated position.
type TokenTracking struct {
	TokenMint    string
	TokenName    string
	Amount       float64 // accumulated token quantity
	BuyPrice     float64 // latest buy price
	CurrentPrice float64 // last observed price
	LastUpdated  int64   // ms
	StopLoss     float64 // sell when price <= StopLoss
	TakeProfit   float64 // sell when price >= TakeProfit
}

// PnLPercent returns the unrealized profit relative to the buy price.
func (t *TokenTracking) PnLPercent() float64 {
	if t.BuyPrice == 0 {
		return 0
	}
	return (t.CurrentPrice - t.BuyPrice) / t.BuyPrice * 100
}
