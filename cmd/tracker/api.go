package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
	"solana-trade-tracker/internal/papertrading"
	"solana-trade-tracker/internal/pricefeed"
	"solana-trade-tracker/internal/solana"
	"solana-trade-tracker/internal/storage"
	"solana-trade-tracker/internal/storage/dbpool"
	"solana-trade-tracker/internal/tracker"
)

const defaultTradesLimit = 50

// apiServer serves health, metrics and read/write JSON endpoints.
type apiServer struct {
	stores  *allStores
	tracker *tracker.Tracker
	sim     *papertrading.Simulator // nil when paper trading is disabled
	rpc     solana.RPCClient        // nil without an RPC endpoint
	wallet  string
	started time.Time
	log     *logrus.Entry
}

func newAPIServer(st *allStores, tr *tracker.Tracker, sim *papertrading.Simulator, rpc solana.RPCClient, wallet string, logger *logrus.Logger) *apiServer {
	return &apiServer{
		stores:  st,
		tracker: tr,
		sim:     sim,
		rpc:     rpc,
		wallet:  wallet,
		started: time.Now(),
		log:     logger.WithField("component", "api"),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /api/holdings", s.handleHoldings)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/tokens/{mint}", s.handleToken)
	mux.HandleFunc("GET /api/tokens", s.handleTokenSearch)

	mux.HandleFunc("GET /api/paper/balance", s.paperOnly(s.handlePaperBalance))
	mux.HandleFunc("GET /api/paper/positions", s.paperOnly(s.handlePaperPositions))
	mux.HandleFunc("GET /api/paper/trades", s.paperOnly(s.handlePaperTrades))
	mux.HandleFunc("POST /api/paper/buy", s.paperOnly(s.handlePaperBuy))
	mux.HandleFunc("POST /api/paper/reset", s.paperOnly(s.handlePaperReset))

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	Storage        string    `json:"storage"`
	PoolTotal      int       `json:"pool_total"`
	PoolInUse      int       `json:"pool_in_use"`
	LastTrackerRun time.Time `json:"last_tracker_run,omitempty"`
	OpenPositions  int       `json:"open_positions"`
	PaperTradingOn bool      `json:"paper_trading"`
	ArchiveSamples bool      `json:"archive_samples"`
	WalletSOL      *float64  `json:"wallet_sol,omitempty"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	positions, lastRun := s.tracker.Positions()
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		Storage:        s.stores.driver,
		LastTrackerRun: lastRun,
		OpenPositions:  len(positions),
		PaperTradingOn: s.sim != nil,
		ArchiveSamples: s.stores.samples != nil,
	}
	if s.stores.pool != nil {
		stats := s.stores.pool.Stats()
		resp.PoolTotal, resp.PoolInUse = stats.Total, stats.InUse
	}
	if s.rpc != nil && s.wallet != "" {
		lamports, err := s.rpc.GetBalance(r.Context(), s.wallet)
		if err != nil {
			s.log.WithError(err).Warn("Wallet balance lookup failed")
		} else {
			sol := float64(lamports) / solana.LamportsPerSOL
			observability.SetWalletBalance(sol)
			resp.WalletSOL = &sol
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleHoldings(w http.ResponseWriter, r *http.Request) {
	var (
		holdings []*domain.HoldingRecord
		err      error
	)
	if mint := r.URL.Query().Get("mint"); mint != "" {
		holdings, err = s.stores.holdings.GetByToken(r.Context(), mint)
	} else {
		holdings, err = s.stores.holdings.List(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// PositionResponse is a valued holding.
type PositionResponse struct {
	Mint              string  `json:"mint"`
	Name              string  `json:"name"`
	Balance           float64 `json:"balance"`
	PerTokenPaidUSDC  float64 `json:"per_token_paid_usdc"`
	Price             float64 `json:"price"`
	Source            string  `json:"source"`
	Fallback          bool    `json:"fallback"`
	UnrealizedUSD     float64 `json:"unrealized_usd"`
	UnrealizedPercent float64 `json:"unrealized_percent"`
	SellSignal        string  `json:"sell_signal,omitempty"`
}

func (s *apiServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, _ := s.tracker.Positions()
	out := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionResponse{
			Mint:              p.Holding.Token,
			Name:              p.Holding.DisplayName(),
			Balance:           p.Holding.Balance,
			PerTokenPaidUSDC:  p.Holding.PerTokenPaidUSDC,
			Price:             p.Quote.Price,
			Source:            p.Quote.Source.String(),
			Fallback:          p.Quote.Fallback,
			UnrealizedUSD:     p.UnrealizedUSD,
			UnrealizedPercent: p.UnrealizedPercent,
			SellSignal:        string(p.SellSignal),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.stores.tokens.FindByMint(r.Context(), r.PathValue("mint"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *apiServer) handleTokenSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokens, err := s.stores.tokens.FindByNameOrCreator(r.Context(), q.Get("name"), q.Get("creator"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *apiServer) paperOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sim == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "paper trading is disabled"})
			return
		}
		h(w, r)
	}
}

func (s *apiServer) handlePaperBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.stores.paper.GetVirtualBalance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *apiServer) handlePaperPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.stores.paper.GetTrackedTokens(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *apiServer) handlePaperTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	trades, err := s.stores.paper.GetRecentTrades(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

type buyRequest struct {
	Mint string `json:"mint"`
	Name string `json:"name"`
}

func (s *apiServer) handlePaperBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name == "" {
		req.Name = s.tokenName(r, req.Mint)
	}
	trade, err := s.sim.BuyAtMarket(r.Context(), req.Mint, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

// tokenName looks a mint up in the token store, then on chain, then gives up with "N/A".
func (s *apiServer) tokenName(r *http.Request, mint string) string {
	if token, err := s.stores.tokens.FindByMint(r.Context(), mint); err == nil {
		return token.Name
	}
	if s.rpc != nil && solana.IsValidAddress(mint) {
		name, err := s.rpc.GetAssetName(r.Context(), mint)
		if err == nil {
			return name
		}
		s.log.WithError(err).WithField("mint", mint).Debug("Token name lookup failed")
	}
	return "N/A"
}

func (s *apiServer) handlePaperReset(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Reset(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.handlePaperBalance(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, storage.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, papertrading.ErrNoPrice):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dbpool.ErrPoolExhausted), errors.Is(err, pricefeed.ErrFeedUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
