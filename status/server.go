// Package status is the agent's read-only HTTP surface: ledger and
// risk state for the dashboard, recent trades, Prometheus metrics, a
// WebSocket event stream, and the one operator action the agent
// accepts over the wire (resetting the kill switch).
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rustyeddy/agent/ledger"
	"github.com/rustyeddy/agent/metrics"
	"github.com/rustyeddy/agent/risk"
	"github.com/rustyeddy/agent/store"
	"github.com/rustyeddy/agent/trade"
)

// TradeReader is the read side of the trade log the server exposes.
type TradeReader interface {
	Recent(n int) ([]trade.Record, error)
	Summarize(walletID, day string) (store.Summary, error)
}

// Halter reports whether the execution pipeline has latched.
type Halter interface {
	Halted() (bool, error)
}

type Server struct {
	led    *ledger.Ledger
	gate   *risk.Gate
	trades TradeReader
	pipe   Halter
	hub    *Hub
	srv    *http.Server
}

func NewServer(addr string, led *ledger.Ledger, gate *risk.Gate,
	trades TradeReader, pipe Halter, hub *Hub) *Server {
	s := &Server{
		led:    led,
		gate:   gate,
		trades: trades,
		pipe:   pipe,
		hub:    hub,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/wallets", s.handleWallets)
	r.Get("/trades", s.handleTrades)
	r.Get("/trades/summary", s.handleSummary)
	r.Post("/risk/reset", s.handleRiskReset)
	r.Handle("/metrics", metrics.Handler())
	if s.hub != nil {
		r.Get("/ws", s.hub.handleWS)
	}
	return r
}

// Start serves until Shutdown. Run it in a goroutine.
func (s *Server) Start() error {
	slog.Info("status server listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "agent"})
}

// statusView is the /status document: risk state plus the headline
// ledger numbers.
type statusView struct {
	Risk           risk.Status `json:"risk"`
	PipelineHalted bool        `json:"pipeline_halted"`
	HaltReason     string      `json:"halt_reason,omitempty"`
	EquityTotalUSD string      `json:"equity_total_usd"`
	WalletsCount   int         `json:"wallets_count"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.led.Snapshot()
	view := statusView{
		Risk:           s.gate.Status(),
		EquityTotalUSD: snap.EquityTotalUSD.String(),
		WalletsCount:   snap.WalletsCount,
		UpdatedAt:      snap.UpdatedAt,
	}
	if s.pipe != nil {
		halted, cause := s.pipe.Halted()
		view.PipelineHalted = halted
		if cause != nil {
			view.HaltReason = cause.Error()
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.led.Snapshot())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := s.trades.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []trade.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.trades.Summarize(
		r.URL.Query().Get("wallet"),
		r.URL.Query().Get("day"),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleRiskReset clears a latched kill switch. Trading resumes on the
// next signal; the drawdown numbers themselves are not touched.
func (s *Server) handleRiskReset(w http.ResponseWriter, r *http.Request) {
	s.gate.ResetKillSwitch()
	metrics.KillSwitchActive.Set(0)
	slog.Warn("kill switch reset via operator endpoint", "remote", r.RemoteAddr)

	if s.hub != nil {
		s.hub.Broadcast(Event{Type: "risk", Data: s.gate.Status()})
	}
	writeJSON(w, http.StatusOK, s.gate.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
