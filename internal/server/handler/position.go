package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/valuation"
)

// PositionService is what the position handler needs from the engine.
type PositionService interface {
	ParseIdentifier(raw string) (domain.AssetIdentifier, error)
	OpenPosition(ctx context.Context, account string, id domain.AssetIdentifier, investedUSD decimal.Decimal) (domain.Position, error)
	SellPosition(ctx context.Context, account string, id domain.AssetIdentifier, fraction decimal.Decimal) (domain.SellResult, error)
	GetPosition(account string, id domain.AssetIdentifier) (domain.Position, error)
	ValuePositions(ctx context.Context, account string) ([]valuation.Valuation, valuation.Summary)
}

// PositionHandler serves the per-account ledger endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type listPositionsResponse struct {
	AccountID string                `json:"account_id"`
	Positions []valuation.Valuation `json:"positions"`
	Summary   valuation.Summary     `json:"summary"`
}

type openRequest struct {
	Asset       string          `json:"asset"`
	InvestedUSD decimal.Decimal `json:"invested_usd"`
}

type sellRequest struct {
	Fraction decimal.Decimal `json:"fraction"`
}

func account(r *http.Request) (string, bool) {
	a := strings.TrimSpace(r.PathValue("account"))
	return a, a != ""
}

// ListPositions returns every position of the account marked to market.
// GET /api/accounts/{account}/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	acc, ok := account(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	vals, summary := h.positions.ValuePositions(r.Context(), acc)
	if vals == nil {
		vals = []valuation.Valuation{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{AccountID: acc, Positions: vals, Summary: summary})
}

// GetPosition returns the active, or most recent, position for one asset.
// GET /api/accounts/{account}/positions/{asset}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	acc, ok := account(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	id, err := h.positions.ParseIdentifier(r.PathValue("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.positions.GetPosition(acc, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// OpenPosition buys invested_usd worth of the asset at the current price.
// POST /api/accounts/{account}/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	acc, ok := account(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	var req openRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.positions.ParseIdentifier(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.positions.OpenPosition(r.Context(), acc, id, req.InvestedUSD)
	if err != nil {
		writeDomainError(w, r, h.logger, "open position", err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// SellPosition sells a fraction of the remaining quantity.
// POST /api/accounts/{account}/positions/{asset}/sell
func (h *PositionHandler) SellPosition(w http.ResponseWriter, r *http.Request) {
	acc, ok := account(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	id, err := h.positions.ParseIdentifier(r.PathValue("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req sellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.positions.SellPosition(r.Context(), acc, id, req.Fraction)
	if err != nil {
		writeDomainError(w, r, h.logger, "sell position", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
