// Package codec serializes ledger snapshots for blob-style stores, sealing
// them when a passphrase is configured.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/signalledger/internal/crypto"
	"github.com/alanyoungcy/signalledger/internal/domain"
)

// ErrSealedNoKey is returned when sealed data is read without a passphrase.
var ErrSealedNoKey = errors.New("codec: snapshot is sealed but no passphrase is configured")

// Codec encodes snapshots as indented JSON, optionally sealed.
type Codec struct {
	sealer *crypto.Sealer
}

// New creates a Codec. sealer may be nil for plaintext snapshots.
func New(sealer *crypto.Sealer) *Codec {
	return &Codec{sealer: sealer}
}

// Sealed reports whether Encode output is encrypted.
func (c *Codec) Sealed() bool { return c.sealer != nil }

// Encode serializes snap.
func (c *Codec) Encode(snap domain.LedgerSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: marshal snapshot: %w", err)
	}
	if c.sealer == nil {
		return data, nil
	}
	sealed, err := c.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("codec: seal snapshot: %w", err)
	}
	return sealed, nil
}

// Decode parses data written by Encode. Plaintext snapshots are accepted
// even when a sealer is configured, so sealing can be switched on for an
// existing store.
func (c *Codec) Decode(data []byte) (domain.LedgerSnapshot, error) {
	if crypto.IsSealed(data) {
		if c.sealer == nil {
			return domain.LedgerSnapshot{}, ErrSealedNoKey
		}
		plain, err := c.sealer.Open(data)
		if err != nil {
			return domain.LedgerSnapshot{}, fmt.Errorf("codec: open snapshot: %w", err)
		}
		data = plain
	}

	var snap domain.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("codec: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
