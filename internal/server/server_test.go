package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/extract"
	"github.com/alanyoungcy/signalledger/internal/ledger"
	"github.com/alanyoungcy/signalledger/internal/resolver"
	"github.com/alanyoungcy/signalledger/internal/server/handler"
	"github.com/alanyoungcy/signalledger/internal/service"
	"github.com/alanyoungcy/signalledger/internal/valuation"
)

const testMint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

// board prices assets by key and can be switched off.
type board struct {
	mu     sync.Mutex
	prices map[string]string
}

func (b *board) set(key, price string) {
	b.mu.Lock()
	b.prices[key] = price
	b.mu.Unlock()
}

func (b *board) Name() string                         { return "board" }
func (b *board) Supports(domain.AssetIdentifier) bool { return true }

func (b *board) Resolve(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prices[id.Key()]
	if !ok {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}
	return domain.ResolvedAsset{Identifier: id, Symbol: "TEST", PriceUSD: decimal.RequireFromString(p)}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{ID: int64(len(m.entries) + 1), Event: event, Detail: detail, CreatedAt: time.Now()})
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

type fixture struct {
	board *board
	h     http.Handler
}

func newFixture(t *testing.T, apiKey string, checks map[string]handler.HealthCheck) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := &board{prices: map[string]string{}}

	res := resolver.New([]domain.Provider{b}, nil, resolver.Options{}, logger)
	led := ledger.New(res, ledger.Options{}, logger)
	audit := &memAudit{}
	eng := service.NewEngine(extract.New(extract.Options{}), res, led, valuation.New(res, logger), nil, audit, nil, logger)

	h := Routes(Config{APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(checks, res.Providers(), logger),
		Signals:   handler.NewSignalHandler(eng, nil, "", logger),
		Assets:    handler.NewAssetHandler(eng, logger),
		Positions: handler.NewPositionHandler(eng, logger),
		Audit:     handler.NewAuditHandler(audit, logger),
	}, nil, nil, logger)
	return &fixture{board: b, h: h}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestPositionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, "", nil)
	f.board.set(testMint, "2")
	base := "/api/accounts/acc1/positions"

	code, pos := f.do(t, http.MethodPost, base, map[string]any{"asset": testMint, "invested_usd": "100"})
	require.Equal(t, http.StatusCreated, code, pos)
	assert.Equal(t, "50", pos["quantity"])

	code, body := f.do(t, http.MethodPost, base, map[string]any{"asset": testMint, "invested_usd": "100"})
	assert.Equal(t, http.StatusConflict, code, body)

	f.board.set(testMint, "3")
	code, res := f.do(t, http.MethodPost, base+"/"+testMint+"/sell", map[string]any{"fraction": "0.5"})
	require.Equal(t, http.StatusOK, code, res)
	fill := res["fill"].(map[string]any)
	assert.Equal(t, "25", fill["quantity_sold"])
	assert.Equal(t, "75", fill["proceeds_usd"])
	assert.Equal(t, "25", fill["realized_pnl_usd"])

	code, list := f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	summary := list["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["active"])
	assert.Equal(t, "25", summary["unrealized_pnl_usd"])

	code, res = f.do(t, http.MethodPost, base+"/"+testMint+"/sell", map[string]any{"fraction": 1})
	require.Equal(t, http.StatusOK, code, res)
	assert.Equal(t, "CLOSED", res["position"].(map[string]any)["status"])

	code, _ = f.do(t, http.MethodPost, base+"/"+testMint+"/sell", map[string]any{"fraction": "0.5"})
	assert.Equal(t, http.StatusConflict, code)

	code, got := f.do(t, http.MethodGet, base+"/"+testMint, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CLOSED", got["status"])

	code, audit := f.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, audit["entries"], 3)
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t, "", nil)
	base := "/api/accounts/acc1/positions"

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad identifier", http.MethodPost, base, map[string]any{"asset": "!!", "invested_usd": "10"}, http.StatusBadRequest},
		{"non-positive amount", http.MethodPost, base, map[string]any{"asset": "WIF", "invested_usd": "0"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base, map[string]any{"asset": "WIF", "usd": "10"}, http.StatusBadRequest},
		{"unresolved asset", http.MethodPost, base, map[string]any{"asset": "WIF", "invested_usd": "10"}, http.StatusServiceUnavailable},
		{"no active position", http.MethodPost, base + "/WIF/sell", map[string]any{"fraction": "0.5"}, http.StatusNotFound},
		{"get missing", http.MethodGet, base + "/WIF", nil, http.StatusNotFound},
		{"unresolved lookup", http.MethodGet, "/api/assets/WIF", nil, http.StatusServiceUnavailable},
		{"alerts without bus", http.MethodPost, "/api/alerts", map[string]any{"text": "buy $WIF"}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, code, body)
		})
	}

	f.board.set("WIF", "1")
	f.do(t, http.MethodPost, base, map[string]any{"asset": "WIF", "invested_usd": "10"})
	code, _ := f.do(t, http.MethodPost, base+"/WIF/sell", map[string]any{"fraction": "1.5"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSignalsAndAssets(t *testing.T) {
	f := newFixture(t, "", nil)
	f.board.set("BONK", "0.00002")

	code, body := f.do(t, http.MethodPost, "/api/signals", map[string]any{
		"text":    "aping BONK and " + testMint + " vs SOL",
		"resolve": true,
	})
	require.Equal(t, http.StatusOK, code, body)
	ids := body["identifiers"].([]any)
	require.Len(t, ids, 2)
	resolved := body["resolved"].([]any)
	assert.NotNil(t, resolved[0].(map[string]any)["asset"])
	assert.NotEmpty(t, resolved[1].(map[string]any)["error"])

	code, _ = f.do(t, http.MethodPost, "/api/signals", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, asset := f.do(t, http.MethodGet, "/api/assets/$bonk", nil)
	require.Equal(t, http.StatusOK, code, asset)
	assert.Equal(t, "0.00002", asset["price_usd"])
}

func TestHealthAndAuth(t *testing.T) {
	f := newFixture(t, "k", map[string]handler.HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	code, body := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, []any{"board"}, body["providers"])

	code, _ = f.do(t, http.MethodGet, "/api/accounts/acc1/positions", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
