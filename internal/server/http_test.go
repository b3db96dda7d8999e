package server

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/core"
	"github.com/exactly/protocol-sub001/internal/lending"
	"github.com/exactly/protocol-sub001/internal/oracle"
	"github.com/exactly/protocol-sub001/internal/query"
)

func wadInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func pct(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(10_000_000_000_000_000))
}

func testServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()

	store := oracle.NewStore()
	if err := store.Set("USDC", wadInt(1)); err != nil {
		t.Fatalf("seed price: %v", err)
	}

	auditor := lending.NewAuditor(store)
	cfg := lending.MarketConfig{
		Asset:          "USDC",
		Decimals:       18,
		PenaltyRate:    big.NewInt(10_000_000_000_000),
		BackupFeeRate:  pct(10),
		ReserveFactor:  pct(10),
		DampSpeedUp:    big.NewInt(100_000_000_000_000),
		DampSpeedDown:  big.NewInt(420_000_000_000_000_000),
		MaxFuturePools: 12,
	}
	irm := &lending.InterestRateModel{
		FloatingBase:   new(big.Int),
		FloatingSlope1: new(big.Int),
		FloatingSlope2: new(big.Int),
		FloatingKink:   pct(80),
		FixedBase:      new(big.Int),
		FixedSlope1:    new(big.Int),
		FixedSlope2:    new(big.Int),
		FixedKink:      pct(80),
		RateCeiling:    wadInt(10),
	}
	m := lending.NewMarket(cfg, irm, 0)
	if err := auditor.EnableMarket(m, pct(90)); err != nil {
		t.Fatalf("enable market: %v", err)
	}

	persist := make(chan core.Output, 256)
	publish := make(chan core.Output, 256)
	engine := core.NewEngine(auditor, store, persist, publish, nil, 1024, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	return NewServer(engine, query.NewService(engine, nil), nil), cancel
}

// ============================================================================
// Test: command endpoint
// ============================================================================

func TestHandleCommand_Deposit(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()
	handler := srv.Handler()

	body := `{
		"id": "550e8400-e29b-41d4-a716-446655440000",
		"kind": "deposit_floating",
		"account": "660e8400-e29b-41d4-a716-446655440001",
		"market": "USDC",
		"amount": "1000000000000000000000",
		"timestamp": 1700000000
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"sequence":0`) {
		t.Errorf("expected sequence 0, got %s", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"value":"1000000000000000000000"`) {
		t.Errorf("expected minted shares in value, got %s", rec.Body)
	}
}

func TestHandleCommand_RejectedIsConflict(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()
	handler := srv.Handler()

	body := `{
		"kind": "withdraw_floating",
		"account": "660e8400-e29b-41d4-a716-446655440001",
		"market": "USDC",
		"amount": "1000000000000000000",
		"timestamp": 1700000000
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rec.Code)
	}
}

func TestHandleCommand_BadKind(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/commands",
		strings.NewReader(`{"kind": "teleport", "market": "USDC"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

// ============================================================================
// Test: query endpoints
// ============================================================================

func TestHandleMarket(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/markets/USDC", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"market":"USDC"`) {
		t.Errorf("expected USDC snapshot, got %s", rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/markets/DOGE", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unlisted market: got %d, want 404", rec.Code)
	}
}

func TestHandleAccount(t *testing.T) {
	srv, cancel := testServer(t)
	defer cancel()
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"collateral":"0"`) {
		t.Errorf("fresh account must have zero collateral, got %s", rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad account id: got %d, want 400", rec.Code)
	}
}

// ============================================================================
// Test: command building
// ============================================================================

func TestBuildCommand_Defaults(t *testing.T) {
	cmd, err := buildCommand(commandRequest{
		Kind:    "deposit_floating",
		Account: uuid.New().String(),
		Market:  "USDC",
		Amount:  "100",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cmd.ID == uuid.Nil {
		t.Errorf("omitted id must be assigned")
	}
	if cmd.Timestamp == 0 {
		t.Errorf("omitted timestamp must default to server time")
	}
	if cmd.Bound != nil {
		t.Errorf("omitted bound must stay nil")
	}
}

func TestBuildCommand_Invalid(t *testing.T) {
	cases := []struct {
		name string
		req  commandRequest
	}{
		{"unknown kind", commandRequest{Kind: "teleport", Market: "USDC"}},
		{"missing market", commandRequest{Kind: "deposit_floating"}},
		{"bad amount", commandRequest{Kind: "deposit_floating", Market: "USDC", Amount: "1.5"}},
		{"bad account", commandRequest{Kind: "deposit_floating", Market: "USDC", Account: "nope"}},
		{"bad id", commandRequest{Kind: "deposit_floating", Market: "USDC", ID: "nope"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := buildCommand(tc.req); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}
