package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
)

const (
	// DefaultDexScreenerURL is the DexScreener tokens endpoint; mints are appended comma separated.
	DefaultDexScreenerURL = "https://api.dexscreener.com/latest/dex/tokens/"

	// DefaultDexID is the venue whose pairs are trusted for pricing.
	DefaultDexID = "raydium"

	// dexMaxMints is the per-request address limit of the tokens endpoint.
	dexMaxMints = 30
)

// DexScreenerClient reads prices from the DexScreener tokens API.
type DexScreenerClient struct {
	http     *HTTPClient
	endpoint string
	dexID    string
}

var _ Feed = (*DexScreenerClient)(nil)

// NewDexScreenerClient creates a DexScreener feed. Empty endpoint and dexID use the defaults.
func NewDexScreenerClient(endpoint, dexID string, client *HTTPClient) *DexScreenerClient {
	if endpoint == "" {
		endpoint = DefaultDexScreenerURL
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if dexID == "" {
		dexID = DefaultDexID
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &DexScreenerClient{http: client, endpoint: endpoint, dexID: dexID}
}

// Source returns PriceSourceDexScreener.
func (c *DexScreenerClient) Source() domain.PriceSource {
	return domain.PriceSourceDexScreener
}

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	Labels      []string `json:"labels"`
	BaseToken   dexToken `json:"baseToken"`
	QuoteToken  dexToken `json:"quoteToken"`
	PriceNative string   `json:"priceNative"`
	PriceUsd    string   `json:"priceUsd"` // can be empty when DexScreener has no USD quote
}

type dexResponse struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []dexPair `json:"pairs"`
}

// Prices fetches USD prices for mints from pairs on the configured dex.
// Per base token, an unlabeled pair wins over labeled ones.
func (c *DexScreenerClient) Prices(ctx context.Context, mints []string) (map[string]float64, error) {
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

	wanted := make(map[string]struct{}, len(ids))
	for _, m := range ids {
		wanted[m] = struct{}{}
	}

	for _, chunk := range chunks(ids, dexMaxMints) {
		var resp dexResponse
		if err = c.http.getJSON(ctx, c.endpoint+strings.Join(chunk, ","), &resp); err != nil {
			return nil, fmt.Errorf("dexscreener prices: %w", err)
		}
		for mint, pair := range c.selectPairs(resp.Pairs) {
			if _, ok := wanted[mint]; !ok {
				continue
			}
			price, perr := decimal.NewFromString(pair.PriceUsd)
			if perr != nil || !price.IsPositive() {
				continue
			}
			out[mint] = price.InexactFloat64()
		}
	}
	return out, nil
}

func (c *DexScreenerClient) selectPairs(pairs []dexPair) map[string]dexPair {
	selected := make(map[string]dexPair)
	for _, p := range pairs {
		if !strings.EqualFold(p.DexID, c.dexID) {
			continue
		}
		if _, ok := selected[p.BaseToken.Address]; !ok || len(p.Labels) == 0 {
			selected[p.BaseToken.Address] = p
		}
	}
	return selected
}
