package domain

// PriceSource identifies the feed a price sample came from.
type PriceSource string

const (
	// PriceSourceJupiter is the primary feed (Jupiter price API).
	PriceSourceJupiter PriceSource = "jupiter"
	// PriceSourceDexScreener is the secondary feed (DexScreener tokens API).
	PriceSourceDexScreener PriceSource = "dexscreener"
)

// String returns the string representation of PriceSource.
func (s PriceSource) String() string {
	return string(s)
}

// IsValid checks if the source is a known feed.
func (s PriceSource) IsValid() bool {
	return s == PriceSourceJupiter || s == PriceSourceDexScreener
}

// Other returns the opposite feed.
func (s PriceSource) Other() PriceSource {
	if s == PriceSourceJupiter {
		return PriceSourceDexScreener
	}
	return PriceSourceJupiter
}

// TokenPrice is a single timestamped, source-tagged price observation.
type TokenPrice struct {
	Price       float64     // price in USD
	TimestampMs int64       // observation time (ms)
	Source      PriceSource // originating feed
}

// PriceHistory is the bounded rolling window of observations for one mint.
type PriceHistory struct {
	Mint           string
	Prices         []TokenPrice // oldest first
	LastValidation int64        // last ValidatePrice call (ms), 0 if never validated
}

// ValidationResult is the verdict on a proposed price.
type ValidationResult struct {
	IsValid        bool
	Confidence     float64  // in [0, 1]
	Reason         string   // human readable explanation
	SuggestedPrice *float64 // rolling average, set on rejection
}

// PriceSample is a feed observation persisted for later analysis.
// Corresponds to price_samples table in ClickHouse.
type PriceSample struct {
	Mint        string
	TimestampMs int64
	Source      PriceSource
	Price       float64
	Accepted    bool // sample became the resolved price
}
