package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/ledger"
	"github.com/alanyoungcy/signalledger/internal/metrics"
)

const (
	snapshotLockKey = "ledger:snapshot"
	snapshotLockTTL = 30 * time.Second
	finalSaveWait   = 15 * time.Second
)

// Persister loads the ledger at startup and writes snapshots while running.
// A save only happens when the ledger revision moved since the last one.
type Persister struct {
	ledger   *ledger.Ledger
	store    domain.LedgerStore
	locks    domain.LockManager
	backend  string
	interval time.Duration
	logger   *slog.Logger

	saved uint64
}

// NewPersister creates a Persister. locks may be nil when only one replica
// writes snapshots.
func NewPersister(led *ledger.Ledger, store domain.LedgerStore, locks domain.LockManager, backend string, interval time.Duration, logger *slog.Logger) *Persister {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Persister{
		ledger:   led,
		store:    store,
		locks:    locks,
		backend:  backend,
		interval: interval,
		logger:   logger.With(slog.String("component", "persister")),
	}
}

// Load restores the last saved snapshot. An empty store is not an error.
func (p *Persister) Load(ctx context.Context) error {
	snap, err := p.store.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.InfoContext(ctx, "persister: no snapshot, starting empty", slog.String("backend", p.backend))
		p.saved = p.ledger.Revision()
		return nil
	}
	if err != nil {
		return fmt.Errorf("persister: load: %w", err)
	}
	if err := p.ledger.Restore(snap); err != nil {
		return fmt.Errorf("persister: restore: %w", err)
	}
	p.saved = p.ledger.Revision()
	p.logger.InfoContext(ctx, "persister: ledger restored",
		slog.String("backend", p.backend),
		slog.Int("positions", len(snap.Positions)),
		slog.Time("taken_at", snap.TakenAt),
	)
	return nil
}

// Run saves on every tick until ctx is cancelled. It does not save on the
// way out; callers run Flush once every writer to the ledger has stopped.
func (p *Persister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.SaveIfDirty(ctx); err != nil {
				p.logger.ErrorContext(ctx, "persister: save failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush makes the final save on a fresh context bounded by finalSaveWait, so
// it still runs after the caller's context was cancelled.
func (p *Persister) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), finalSaveWait)
	defer cancel()
	if _, err := p.SaveIfDirty(ctx); err != nil {
		p.logger.ErrorContext(ctx, "persister: final save failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// SaveIfDirty writes a snapshot when the ledger changed. It reports whether a
// snapshot was written. Losing the lock to another replica skips the round.
func (p *Persister) SaveIfDirty(ctx context.Context) (bool, error) {
	rev := p.ledger.Revision()
	if rev == p.saved {
		return false, nil
	}

	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, snapshotLockKey, snapshotLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			p.logger.DebugContext(ctx, "persister: snapshot lock held elsewhere")
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("persister: lock: %w", err)
		}
		defer unlock()
	}

	snap := p.ledger.Snapshot()
	err := p.store.Save(ctx, snap)
	metrics.SnapshotSaves.WithLabelValues(p.backend, metrics.Result(err)).Inc()
	if err != nil {
		return false, fmt.Errorf("persister: save: %w", err)
	}

	p.saved = rev
	p.logger.InfoContext(ctx, "persister: snapshot saved",
		slog.String("backend", p.backend),
		slog.Int("positions", len(snap.Positions)),
	)
	return true, nil
}
