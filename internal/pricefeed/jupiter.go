package pricefeed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
	"solana-trade-tracker/internal/solana"
)

const (
	// DefaultJupiterURL is the Jupiter price API endpoint.
	DefaultJupiterURL = "https://api.jup.ag/price/v2"

	// SOLMint is the wrapped SOL mint, always requested alongside holdings.
	SOLMint = "So11111111111111111111111111111111111111112"

	// jupiterMaxIDs is the per-request id limit of the price API.
	jupiterMaxIDs = 100
)

// Feed returns USD prices for a set of mints.
// Mints the feed has no price for are absent from the result.
type Feed interface {
	Source() domain.PriceSource
	Prices(ctx context.Context, mints []string) (map[string]float64, error)
}

// JupiterClient reads prices from the Jupiter price API.
type JupiterClient struct {
	http     *HTTPClient
	endpoint string
}

var _ Feed = (*JupiterClient)(nil)

// NewJupiterClient creates a Jupiter feed. An empty endpoint uses DefaultJupiterURL.
func NewJupiterClient(endpoint string, client *HTTPClient) *JupiterClient {
	if endpoint == "" {
		endpoint = DefaultJupiterURL
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &JupiterClient{http: client, endpoint: endpoint}
}

// Source returns PriceSourceJupiter.
func (c *JupiterClient) Source() domain.PriceSource {
	return domain.PriceSourceJupiter
}

type jupiterResponse struct {
	Data map[string]*jupiterPrice `json:"data"`
}

type jupiterPrice struct {
	ID        string              `json:"id"`
	Price     decimal.NullDecimal `json:"price"`
	ExtraInfo *struct {
		LastSwappedPrice *struct {
			LastJupiterSellPrice decimal.NullDecimal `json:"lastJupiterSellPrice"`
			LastJupiterBuyPrice  decimal.NullDecimal `json:"lastJupiterBuyPrice"`
		} `json:"lastSwappedPrice"`
	} `json:"extraInfo"`
}

// value prefers the last Jupiter sell price, falling back to the derived price.
func (p *jupiterPrice) value() (float64, bool) {
	if p == nil {
		return 0, false
	}
	if p.ExtraInfo != nil && p.ExtraInfo.LastSwappedPrice != nil {
		if sell := p.ExtraInfo.LastSwappedPrice.LastJupiterSellPrice; sell.Valid && sell.Decimal.IsPositive() {
			return sell.Decimal.InexactFloat64(), true
		}
	}
	if p.Price.Valid && p.Price.Decimal.IsPositive() {
		return p.Price.Decimal.InexactFloat64(), true
	}
	return 0, false
}

// Prices fetches sell prices for mints. Invalid addresses are skipped.
func (c *JupiterClient) Prices(ctx context.Context, mints []string) (map[string]float64, error) {
	ids := validMints(mints)
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	start := time.Now()
	var err error
	defer func() {
		observability.RecordFeedCall(c.Source().String(), time.Since(start).Seconds(), err)
	}()

	for _, chunk := range chunks(ids, jupiterMaxIDs-1) {
		q := url.Values{}
		q.Set("ids", strings.Join(append(chunk[:len(chunk):len(chunk)], SOLMint), ","))
		q.Set("showExtraInfo", "true")

		var resp jupiterResponse
		if err = c.http.getJSON(ctx, c.endpoint+"?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("jupiter prices: %w", err)
		}
		for _, mint := range chunk {
			if v, ok := resp.Data[mint].value(); ok {
				out[mint] = v
			}
		}
	}
	return out, nil
}

// validMints drops blank, duplicate and non-base58 addresses, keeping order.
func validMints(mints []string) []string {
	seen := make(map[string]struct{}, len(mints))
	out := make([]string, 0, len(mints))
	for _, m := range mints {
		m = strings.TrimSpace(m)
		if _, dup := seen[m]; dup || !solana.IsValidAddress(m) {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func chunks(items []string, size int) [][]string {
	var out [][]string
	for len(items) > size {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
