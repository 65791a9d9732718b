// Package httpapi exposes the engine's operations over HTTP: chi
// handlers backed by the Spot, Futures, and Options engines, the
// Portfolio Ledger, the Snapshot Aggregator, and the Watchlist, plus a
// domain-event broadcast on every successful mutation.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/crossengine/internal/broadcast"
	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/futures"
	"github.com/atmx/crossengine/internal/ledger"
	"github.com/atmx/crossengine/internal/options"
	"github.com/atmx/crossengine/internal/optschain"
	"github.com/atmx/crossengine/internal/snapshot"
	"github.com/atmx/crossengine/internal/spot"
	"github.com/atmx/crossengine/internal/watchlist"
)

// Server wires every engine into chi handlers. It holds no lock of its
// own — each engine serializes its own state.
type Server struct {
	ledger      *ledger.Ledger
	spot        *spot.Engine
	futures     *futures.Engine
	options     *options.Engine
	watchlist   *watchlist.List
	aggregator  *snapshot.Aggregator
	broadcaster broadcast.Broadcaster
}

// New builds a Server. broadcaster may be nil, in which case mutations
// are not fanned out to any event sink.
func New(l *ledger.Ledger, spotEngine *spot.Engine, futuresEngine *futures.Engine, optionsEngine *options.Engine, list *watchlist.List, aggregator *snapshot.Aggregator, broadcaster broadcast.Broadcaster) *Server {
	if broadcaster == nil {
		broadcaster = broadcast.Noop{}
	}
	return &Server{
		ledger:      l,
		spot:        spotEngine,
		futures:     futuresEngine,
		options:     optionsEngine,
		watchlist:   list,
		aggregator:  aggregator,
		broadcaster: broadcaster,
	}
}

// Routes mounts every handler under r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/spot", func(r chi.Router) {
			r.Post("/buy", s.executeBuy)
			r.Post("/sell", s.executeSell)
			r.Post("/holding-meta", s.setHoldingMeta)
			r.Post("/reset", s.reset)
			r.Get("/snapshot", s.getSnapshot)
			r.Get("/quote", s.quote)
			r.Get("/transactions", s.spotTransactions)
			r.Get("/transactions/{ticker}", s.spotTransactionsForTicker)
		})

		r.Route("/futures", func(r chi.Router) {
			r.Post("/open-long", s.openLong)
			r.Post("/open-short", s.openShort)
			r.Post("/close/{id}", s.closePosition)
			r.Post("/leverage", s.setLeverage)
			r.Get("/positions", s.futuresPositions)
			r.Get("/account", s.futuresAccount)
			r.Get("/transactions", s.futuresTransactions)
		})

		r.Route("/options", func(r chi.Router) {
			r.Post("/buy", s.buyOption)
			r.Post("/sell/{id}", s.sellOption)
			r.Get("/positions", s.optionsPositions)
			r.Get("/quote", s.optionsQuote)
			r.Post("/settle", s.settleExpiredOptions)
			r.Get("/chain", s.generateChain)
			r.Get("/transactions", s.optionsTransactions)
		})

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.listWatchlist)
			r.Post("/", s.addWatchlist)
			r.Delete("/{ticker}", s.removeWatchlist)
		})
	})
}

// --- Spot ---

type executeTradeRequest struct {
	Ticker    string  `json:"ticker"`
	Quantity  float64 `json:"quantity"`
	Reasoning string  `json:"reasoning,omitempty"`
	Type      string  `json:"type,omitempty"`
}

func (s *Server) executeBuy(w http.ResponseWriter, r *http.Request) {
	var req executeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ref, err := s.spot.ExecuteBuy(r.Context(), req.Ticker, req.Quantity, req.Type, req.Reasoning)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("portfolio.updated", map[string]string{"reason": "buy", "ticker": req.Ticker})
	writeJSON(w, http.StatusOK, map[string]string{"result": ref})
}

func (s *Server) executeSell(w http.ResponseWriter, r *http.Request) {
	var req executeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ref, err := s.spot.ExecuteSell(r.Context(), req.Ticker, req.Quantity, req.Type, req.Reasoning)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("portfolio.updated", map[string]string{"reason": "sell", "ticker": req.Ticker})
	writeJSON(w, http.StatusOK, map[string]string{"result": ref})
}

type holdingMetaRequest struct {
	Ticker  string `json:"ticker"`
	Thesis  string `json:"thesis,omitempty"`
	Context string `json:"context,omitempty"`
}

func (s *Server) setHoldingMeta(w http.ResponseWriter, r *http.Request) {
	var req holdingMetaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.ledger.SetHoldingMeta(req.Ticker, req.Thesis, req.Context); err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("portfolio.updated", map[string]string{"reason": "holding-meta", "ticker": req.Ticker})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cash float64 `json:"cash,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.ledger.Reset(req.Cash); err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("portfolio.updated", map[string]string{"reason": "reset"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregator.GetEnrichedSnapshot(r.Context()))
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	symbolsParam := r.URL.Query().Get("symbols")
	if symbolsParam == "" {
		symbolsParam = r.URL.Query().Get("symbol")
	}
	if symbolsParam == "" {
		writeError(w, "symbol or symbols query parameter required", http.StatusBadRequest)
		return
	}
	assetType := r.URL.Query().Get("type")

	symbols := strings.Split(symbolsParam, ",")
	results := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		price, err := s.spot.GetQuote(r.Context(), strings.TrimSpace(symbol), assetType)
		if err != nil {
			results[strings.ToUpper(strings.TrimSpace(symbol))] = 0
			continue
		}
		results[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) spotTransactions(w http.ResponseWriter, r *http.Request) {
	limit := limitFromQuery(r, 50)
	writeJSON(w, http.StatusOK, s.ledger.Transactions(limit))
}

func (s *Server) spotTransactionsForTicker(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	limit := limitFromQuery(r, 50)
	writeJSON(w, http.StatusOK, s.ledger.TransactionsForTicker(ticker, limit))
}

// --- Futures ---

type openPositionRequest struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	Leverage int     `json:"leverage,omitempty"`
}

func (s *Server) openLong(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pos, err := s.futures.OpenLong(r.Context(), req.Ticker, req.Quantity, req.Leverage)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("futures.updated", pos)
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) openShort(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pos, err := s.futures.OpenShort(r.Context(), req.Ticker, req.Quantity, req.Leverage)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("futures.updated", pos)
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Quantity float64 `json:"quantity,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	pnl, err := s.futures.ClosePosition(r.Context(), id, req.Quantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("futures.updated", map[string]any{"id": id, "pnl": pnl})
	writeJSON(w, http.StatusOK, map[string]float64{"pnl": pnl})
}

type setLeverageRequest struct {
	Ticker   string `json:"ticker"`
	Leverage int    `json:"leverage"`
}

func (s *Server) setLeverage(w http.ResponseWriter, r *http.Request) {
	var req setLeverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.futures.SetLeverage(req.Ticker, req.Leverage); err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("futures.updated", map[string]any{"ticker": req.Ticker, "leverage": req.Leverage})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) futuresPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.futures.GetPositions(r.Context()))
}

func (s *Server) futuresAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.futures.GetAccount(r.Context()))
}

func (s *Server) futuresTransactions(w http.ResponseWriter, r *http.Request) {
	limit := limitFromQuery(r, 50)
	writeJSON(w, http.StatusOK, s.futures.GetTransactions(limit))
}

// --- Options ---

type buyOptionRequest struct {
	Underlying string  `json:"underlying"`
	Strike     float64 `json:"strike"`
	ExpiryDate string  `json:"expiryDate"`
	IsPut      bool    `json:"isPut,omitempty"`
	Contracts  float64 `json:"contracts"`
}

func (s *Server) buyOption(w http.ResponseWriter, r *http.Request) {
	var req buyOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pos, err := s.options.BuyOption(r.Context(), req.Underlying, req.Strike, req.ExpiryDate, req.IsPut, req.Contracts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("options.updated", pos)
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) sellOption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Contracts float64 `json:"contracts,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	pnl, err := s.options.SellOption(r.Context(), id, req.Contracts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("options.updated", map[string]any{"id": id, "pnl": pnl})
	writeJSON(w, http.StatusOK, map[string]float64{"pnl": pnl})
}

func (s *Server) optionsPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.options.GetPositions(r.Context()))
}

func (s *Server) optionsQuote(w http.ResponseWriter, r *http.Request) {
	underlying := r.URL.Query().Get("underlying")
	strike, err := strconv.ParseFloat(r.URL.Query().Get("strike"), 64)
	if err != nil {
		writeError(w, "strike query parameter must be a positive number", http.StatusBadRequest)
		return
	}
	expiryDate := r.URL.Query().Get("expiry")
	isPut := strings.EqualFold(r.URL.Query().Get("type"), "put")

	q, err := s.options.GetQuote(r.Context(), underlying, strike, expiryDate, isPut)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) optionsTransactions(w http.ResponseWriter, r *http.Request) {
	limit := limitFromQuery(r, 50)
	writeJSON(w, http.StatusOK, s.options.GetTransactions(limit))
}

func (s *Server) settleExpiredOptions(w http.ResponseWriter, r *http.Request) {
	results, err := s.options.SettleExpiredOptions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if r.URL.Query().Get("broadcast") == "true" {
		for _, res := range results {
			s.broadcaster.Emit("options.expired", res)
		}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) generateChain(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	priceStr := r.URL.Query().Get("price")
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 {
		writeError(w, "price query parameter must be a positive number", http.StatusBadRequest)
		return
	}
	chain := optschain.BuildChain(ticker, price, time.Now())
	writeJSON(w, http.StatusOK, chain)
}

// --- Watchlist ---

func (s *Server) listWatchlist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watchlist.List())
}

type watchlistRequest struct {
	Ticker string `json:"ticker"`
	Thesis string `json:"thesis,omitempty"`
}

func (s *Server) addWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.watchlist.Add(req.Ticker, req.Thesis); err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("watchlist.updated", req)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) removeWatchlist(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if err := s.watchlist.Remove(ticker); err != nil {
		writeEngineError(w, err)
		return
	}
	s.broadcaster.Emit("watchlist.updated", map[string]string{"ticker": ticker, "removed": "true"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func limitFromQuery(r *http.Request, fallback int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("httpapi: encode response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeEngineError maps the engineerr taxonomy to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engineerr.ErrInvalidParam):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engineerr.ErrInsufficientFunds), errors.Is(err, engineerr.ErrInsufficientHoldings):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engineerr.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engineerr.ErrNetwork):
		writeError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, engineerr.ErrInvariant):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}
