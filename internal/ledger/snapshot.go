package ledger

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/metrics"
)

// Snapshot copies the whole ledger. Positions are ordered by OpenedAt, then
// ID, so equal ledgers produce identical snapshots.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.RLock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.Clone())
	}
	l.mu.RUnlock()

	sortPositions(out)
	return domain.LedgerSnapshot{
		Version:   domain.LedgerSnapshotVersion,
		TakenAt:   l.now().UTC(),
		Positions: out,
	}
}

func sortPositions(ps []domain.Position) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].OpenedAt.Before(ps[j].OpenedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// Restore replaces the ledger contents with snap after checking it. It must
// run before the ledger serves traffic. On error the ledger is unchanged.
func (l *Ledger) Restore(snap domain.LedgerSnapshot) error {
	if snap.Version != domain.LedgerSnapshotVersion {
		return fmt.Errorf("ledger: restore: version %d: %w", snap.Version, domain.ErrInvalidSnapshot)
	}

	ps := make([]domain.Position, len(snap.Positions))
	for i, p := range snap.Positions {
		ps[i] = p.Clone()
	}
	sortPositions(ps)

	positions := make(map[string]*domain.Position, len(ps))
	active := make(map[string]string)
	latest := make(map[string]string)
	byAccount := make(map[string][]string)

	for i := range ps {
		p := &ps[i]
		if err := checkPosition(*p); err != nil {
			return fmt.Errorf("ledger: restore position %s: %w", p.ID, err)
		}
		if _, dup := positions[p.ID]; dup {
			return fmt.Errorf("ledger: restore: duplicate id %s: %w", p.ID, domain.ErrInvalidSnapshot)
		}

		key := positionKey(p.AccountID, p.Asset)
		if p.IsActive() {
			if other, ok := active[key]; ok {
				return fmt.Errorf("ledger: restore: %s and %s both active for %s: %w", other, p.ID, key, domain.ErrInvalidSnapshot)
			}
			active[key] = p.ID
		}
		positions[p.ID] = p
		latest[key] = p.ID
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p.ID)
	}

	l.mu.Lock()
	l.positions = positions
	l.active = active
	l.latest = latest
	l.byAccount = byAccount
	l.revision++
	activeCount := len(active)
	l.mu.Unlock()

	metrics.ActivePositions.Set(float64(activeCount))
	return nil
}

// checkPosition verifies the accounting invariants of one restored position.
func checkPosition(p domain.Position) error {
	switch {
	case p.ID == "" || p.AccountID == "" || p.Asset.IsZero():
		return fmt.Errorf("missing id, account or asset: %w", domain.ErrInvalidSnapshot)
	case p.Status != domain.PositionStatusActive && p.Status != domain.PositionStatusClosed:
		return fmt.Errorf("unknown status %q: %w", p.Status, domain.ErrInvalidSnapshot)
	case !p.InitialQuantity.IsPositive() || !p.EntryPriceUSD.IsPositive():
		return fmt.Errorf("non-positive quantity or entry price: %w", domain.ErrInvalidSnapshot)
	case p.IsActive() && !p.Quantity.IsPositive():
		return fmt.Errorf("active with no quantity: %w", domain.ErrInvalidSnapshot)
	case p.IsActive() && p.ClosedAt != nil:
		return fmt.Errorf("active with close time: %w", domain.ErrInvalidSnapshot)
	case p.Quantity.IsNegative():
		return fmt.Errorf("negative quantity: %w", domain.ErrInvalidSnapshot)
	}
	if !p.SoldQuantity().Add(p.Quantity).Equal(p.InitialQuantity) {
		return fmt.Errorf("sold %s + remaining %s != initial %s: %w",
			p.SoldQuantity(), p.Quantity, p.InitialQuantity, domain.ErrInvalidSnapshot)
	}
	return nil
}
