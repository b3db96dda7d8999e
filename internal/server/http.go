package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/core"
	"github.com/exactly/protocol-sub001/internal/observability"
	"github.com/exactly/protocol-sub001/internal/query"
)

// Server exposes the HTTP/JSON API: command submission plus read-only
// market, account, and event-log queries.
type Server struct {
	engine  *core.Engine
	queries *query.Service
	metrics *observability.Metrics
}

func NewServer(engine *core.Engine, queries *query.Service, metrics *observability.Metrics) *Server {
	return &Server{engine: engine, queries: queries, metrics: metrics}
}

// Handler builds the API routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/commands", s.instrument("commands", s.handleCommand))
	mux.HandleFunc("GET /v1/markets", s.instrument("markets", s.handleListMarkets))
	mux.HandleFunc("GET /v1/markets/{asset}", s.instrument("market", s.handleMarket))
	mux.HandleFunc("GET /v1/accounts/{id}", s.instrument("account", s.handleAccount))
	mux.HandleFunc("GET /v1/events", s.instrument("events", s.handleEvents))
	mux.HandleFunc("GET /v1/integrity", s.instrument("integrity", s.handleIntegrity))
	return mux
}

// commandRequest is the JSON wire format for command submission. Amounts
// are wad decimal strings. Omitting id lets the server assign one, at the
// cost of retry idempotency.
type commandRequest struct {
	ID               string `json:"id,omitempty"`
	Kind             string `json:"kind"`
	Account          string `json:"account,omitempty"`
	Market           string `json:"market"`
	Borrower         string `json:"borrower,omitempty"`
	CollateralMarket string `json:"collateral_market,omitempty"`
	Maturity         int64  `json:"maturity,omitempty"`
	Amount           string `json:"amount,omitempty"`
	Bound            string `json:"bound,omitempty"`
	Param            string `json:"param,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
}

type commandResponse struct {
	Sequence  int64  `json:"sequence"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Value     string `json:"value,omitempty"`
	Extra     string `json:"extra,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	cmd, err := buildCommand(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.engine.Submit(r.Context(), cmd)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if res.Err != nil {
		writeError(w, http.StatusConflict, res.Err)
		return
	}

	resp := commandResponse{Sequence: res.Sequence, Duplicate: res.Sequence < 0}
	if res.Value != nil {
		resp.Value = res.Value.String()
	}
	if res.Extra != nil {
		resp.Extra = res.Extra.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.queries.ListMarkets(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": assets})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.MarketSnapshot(r.Context(), r.PathValue("asset"), time.Now().Unix())
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse account id: %w", err))
		return
	}

	resp, err := s.queries.AccountSnapshot(r.Context(), account, time.Now().Unix())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var marketID *string
	if m := q.Get("market"); m != "" {
		marketID = &m
	}

	limit := 100
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse limit: %w", err))
			return
		}
		limit = n
	}

	var after *int64
	if a := q.Get("after"); a != "" {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse after: %w", err))
			return
		}
		after = &n
	}

	events, err := s.queries.EventHistory(r.Context(), marketID, limit, after)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// buildCommand validates the wire request into an engine command.
func buildCommand(req commandRequest) (core.Command, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return core.Command{}, err
	}

	cmd := core.Command{
		Kind:             kind,
		Market:           req.Market,
		CollateralMarket: req.CollateralMarket,
		Maturity:         req.Maturity,
		Param:            req.Param,
		Timestamp:        req.Timestamp,
	}

	// Auditor-level parameter updates are the only market-less commands.
	if cmd.Market == "" && kind != core.CmdUpdateParam {
		return core.Command{}, errors.New("market is required")
	}
	if cmd.Timestamp == 0 {
		cmd.Timestamp = time.Now().Unix()
	}

	if req.ID != "" {
		cmd.ID, err = uuid.Parse(req.ID)
		if err != nil {
			return core.Command{}, fmt.Errorf("parse id: %w", err)
		}
	} else {
		cmd.ID = uuid.New()
	}

	if req.Account != "" {
		cmd.Account, err = uuid.Parse(req.Account)
		if err != nil {
			return core.Command{}, fmt.Errorf("parse account: %w", err)
		}
	}
	if req.Borrower != "" {
		cmd.Borrower, err = uuid.Parse(req.Borrower)
		if err != nil {
			return core.Command{}, fmt.Errorf("parse borrower: %w", err)
		}
	}

	if req.Amount != "" {
		amount, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok {
			return core.Command{}, fmt.Errorf("bad amount %q", req.Amount)
		}
		cmd.Amount = amount
	}
	if req.Bound != "" {
		bound, ok := new(big.Int).SetString(req.Bound, 10)
		if !ok {
			return core.Command{}, fmt.Errorf("bad bound %q", req.Bound)
		}
		cmd.Bound = bound
	}

	return cmd, nil
}

func parseKind(kind string) (core.CommandKind, error) {
	switch kind {
	case "deposit_floating":
		return core.CmdDepositFloating, nil
	case "withdraw_floating":
		return core.CmdWithdrawFloating, nil
	case "borrow_floating":
		return core.CmdBorrowFloating, nil
	case "repay_floating":
		return core.CmdRepayFloating, nil
	case "deposit_fixed":
		return core.CmdDepositFixed, nil
	case "withdraw_fixed":
		return core.CmdWithdrawFixed, nil
	case "borrow_fixed":
		return core.CmdBorrowFixed, nil
	case "repay_fixed":
		return core.CmdRepayFixed, nil
	case "liquidate":
		return core.CmdLiquidate, nil
	case "enter_market":
		return core.CmdEnterMarket, nil
	case "exit_market":
		return core.CmdExitMarket, nil
	case "update_param":
		return core.CmdUpdateParam, nil
	default:
		return core.CmdUnknown, fmt.Errorf("unknown command kind %q", kind)
	}
}

// instrument wraps a handler with request counting and latency metrics.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Run serves the API until ctx is cancelled, then drains in-flight
// requests with a short grace period.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	log := observability.NewLogger("server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
