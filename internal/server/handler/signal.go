package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// SignalService is what the signal handler needs from the engine.
type SignalService interface {
	IngestSignal(ctx context.Context, source, text string) []domain.AssetIdentifier
	ResolveAsset(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error)
}

// SignalHandler serves signal extraction and alert submission.
type SignalHandler struct {
	signals SignalService
	bus     domain.SignalBus
	stream  string
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler. bus may be nil, which disables
// alert submission.
func NewSignalHandler(signals SignalService, bus domain.SignalBus, stream string, logger *slog.Logger) *SignalHandler {
	if stream == "" {
		stream = domain.StreamAlerts
	}
	return &SignalHandler{signals: signals, bus: bus, stream: stream, logger: logger}
}

type signalRequest struct {
	Source  string `json:"source"`
	Text    string `json:"text"`
	Resolve bool   `json:"resolve"`
}

type resolvedEntry struct {
	Identifier domain.AssetIdentifier `json:"identifier"`
	Asset      *domain.ResolvedAsset  `json:"asset,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

type signalResponse struct {
	Identifiers []domain.AssetIdentifier `json:"identifiers"`
	Resolved    []resolvedEntry          `json:"resolved,omitempty"`
}

// Extract returns the identifiers found in the text and, when asked,
// resolves each of them.
// POST /api/signals
func (h *SignalHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	ids := h.signals.IngestSignal(r.Context(), req.Source, req.Text)
	if ids == nil {
		ids = []domain.AssetIdentifier{}
	}
	resp := signalResponse{Identifiers: ids}

	if req.Resolve {
		resp.Resolved = make([]resolvedEntry, 0, len(ids))
		for _, id := range ids {
			entry := resolvedEntry{Identifier: id}
			asset, err := h.signals.ResolveAsset(r.Context(), id)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Asset = &asset
			}
			resp.Resolved = append(resp.Resolved, entry)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SubmitAlert appends a free-text alert to the alert stream for the
// watcher to pick up.
// POST /api/alerts
func (h *SignalHandler) SubmitAlert(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "alert stream is not configured")
		return
	}

	var req signalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	payload, err := json.Marshal(domain.Alert{
		Source:     req.Source,
		Text:       req.Text,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode alert failed")
		return
	}
	if err := h.bus.StreamAppend(r.Context(), h.stream, payload); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: append alert failed",
			slog.String("stream", h.stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "alert stream unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
