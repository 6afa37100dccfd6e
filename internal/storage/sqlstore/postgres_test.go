package sqlstore

import (
	"testing"

	"solana-trade-tracker/internal/storage/dbpool"
)

func TestPostgresStores(t *testing.T) {
	pool := setupPostgres(t)

	suites := []struct {
		name string
		run  func(*testing.T, *dbpool.Pool)
	}{
		{"holdings", testHoldingRoundTrip},
		{"tokens", testTokenStore},
		{"paper_lifecycle", testPaperTradingLifecycle},
		{"paper_rejections", testPaperTradingRejections},
	}
	for _, s := range suites {
		t.Run(s.name, func(t *testing.T) {
			truncateAll(t, pool)
			s.run(t, pool)
		})
	}
}
