package domain

import "time"

// Bus channels and streams.
const (
	ChannelPositions = "positions"
	ChannelSignals   = "signals"
	StreamAlerts     = "alerts"
)

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// Alert is a free-text message delivered on the alerts stream.
type Alert struct {
	Source     string    `json:"source"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// PositionEvent is published on ChannelPositions after every ledger mutation.
type PositionEvent struct {
	Event     string       `json:"event"`
	AccountID string       `json:"account_id"`
	Asset     string       `json:"asset"`
	Position  Position     `json:"position"`
	Fill      *PartialSell `json:"fill,omitempty"`
	At        time.Time    `json:"at"`
}

// SignalEvent is published on ChannelSignals when an alert yields
// identifiers.
type SignalEvent struct {
	Source      string            `json:"source"`
	Identifiers []AssetIdentifier `json:"identifiers"`
	Resolved    []ResolvedAsset   `json:"resolved"`
	At          time.Time         `json:"at"`
}
