package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// AssetService is what the asset handler needs from the engine.
type AssetService interface {
	ParseIdentifier(raw string) (domain.AssetIdentifier, error)
	ResolveAsset(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error)
}

// AssetHandler serves asset resolution.
type AssetHandler struct {
	assets AssetService
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, logger: logger}
}

// Resolve resolves a ticker or contract address.
// GET /api/assets/{id}
func (h *AssetHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := h.assets.ParseIdentifier(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := h.assets.ResolveAsset(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve asset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}
