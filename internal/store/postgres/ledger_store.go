package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Positions are upserted by ID and
// fills are append-only rows keyed by (position_id, seq). Numeric columns
// travel as text so no precision is lost on either side.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const upsertPosition = `
	INSERT INTO ledger_positions (
		id, account_id, asset_kind, asset_value, asset_chain, symbol, source,
		quantity, initial_quantity, entry_price_usd, invested_usd,
		status, opened_at, closed_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric,
		$12, $13, $14, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		quantity   = EXCLUDED.quantity,
		status     = EXCLUDED.status,
		closed_at  = EXCLUDED.closed_at,
		updated_at = NOW()`

const insertFill = `
	INSERT INTO ledger_fills (
		position_id, seq, filled_at, fraction, quantity_sold,
		price_usd, proceeds_usd, realized_pnl_usd
	) VALUES (
		$1, $2, $3, $4::text::numeric, $5::text::numeric,
		$6::text::numeric, $7::text::numeric, $8::text::numeric
	)
	ON CONFLICT (position_id, seq) DO NOTHING`

// saveOrder puts closed positions first so a reopened key never holds two
// ACTIVE rows mid-transaction.
func saveOrder(ps []domain.Position) []domain.Position {
	out := make([]domain.Position, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].IsActive() && out[j].IsActive()
	})
	return out
}

// Save writes the snapshot in one transaction.
func (s *LedgerStore) Save(ctx context.Context, snap domain.LedgerSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin ledger save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, p := range saveOrder(snap.Positions) {
		batch.Queue(upsertPosition,
			p.ID, p.AccountID, string(p.Asset.Kind), p.Asset.Value, string(p.Asset.Chain), p.Symbol, p.Source,
			p.Quantity.String(), p.InitialQuantity.String(), p.EntryPriceUSD.String(), p.InvestedUSD.String(),
			string(p.Status), p.OpenedAt, p.ClosedAt,
		)
		for i, f := range p.Fills {
			batch.Queue(insertFill,
				p.ID, i, f.Timestamp, f.Fraction.String(), f.QuantitySold.String(),
				f.PriceUSD.String(), f.ProceedsUSD.String(), f.RealizedPnlUSD.String(),
			)
		}
	}
	batch.Queue(`INSERT INTO ledger_snapshots (version, taken_at, positions) VALUES ($1, $2, $3)`,
		snap.Version, snap.TakenAt, len(snap.Positions))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: save ledger: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit ledger save: %w", err)
	}
	return nil
}

// Load rebuilds the latest snapshot. It returns domain.ErrNotFound when no
// snapshot was ever saved.
func (s *LedgerStore) Load(ctx context.Context) (domain.LedgerSnapshot, error) {
	var snap domain.LedgerSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT version, taken_at FROM ledger_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&snap.Version, &snap.TakenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LedgerSnapshot{}, domain.ErrNotFound
		}
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: load snapshot header: %w", err)
	}

	positions, err := s.loadPositions(ctx)
	if err != nil {
		return domain.LedgerSnapshot{}, err
	}
	if err := s.loadFills(ctx, positions); err != nil {
		return domain.LedgerSnapshot{}, err
	}

	snap.Positions = positions
	return snap, nil
}

func (s *LedgerStore) loadPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, asset_kind, asset_value, asset_chain, symbol, source,
		       quantity::text, initial_quantity::text, entry_price_usd::text, invested_usd::text,
		       status, opened_at, closed_at
		FROM ledger_positions
		ORDER BY opened_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}

	positions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Position, error) {
		var (
			p                          domain.Position
			kind, chain, status        string
			qty, initial, entry, spent string
			closedAt                   *time.Time
		)
		if err := row.Scan(
			&p.ID, &p.AccountID, &kind, &p.Asset.Value, &chain, &p.Symbol, &p.Source,
			&qty, &initial, &entry, &spent,
			&status, &p.OpenedAt, &closedAt,
		); err != nil {
			return domain.Position{}, err
		}
		p.Asset.Kind = domain.AssetKind(kind)
		p.Asset.Chain = domain.Chain(chain)
		p.Status = domain.PositionStatus(status)
		p.ClosedAt = closedAt
		p.Fills = []domain.PartialSell{}

		var err error
		if p.Quantity, err = decimal.NewFromString(qty); err != nil {
			return domain.Position{}, err
		}
		if p.InitialQuantity, err = decimal.NewFromString(initial); err != nil {
			return domain.Position{}, err
		}
		if p.EntryPriceUSD, err = decimal.NewFromString(entry); err != nil {
			return domain.Position{}, err
		}
		if p.InvestedUSD, err = decimal.NewFromString(spent); err != nil {
			return domain.Position{}, err
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

func (s *LedgerStore) loadFills(ctx context.Context, positions []domain.Position) error {
	idx := make(map[string]int, len(positions))
	for i, p := range positions {
		idx[p.ID] = i
	}

	rows, err := s.pool.Query(ctx, `
		SELECT position_id, filled_at, fraction::text, quantity_sold::text,
		       price_usd::text, proceeds_usd::text, realized_pnl_usd::text
		FROM ledger_fills
		ORDER BY position_id, seq`)
	if err != nil {
		return fmt.Errorf("postgres: load fills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			posID string
			f     domain.PartialSell
			vals  [5]string
		)
		if err := rows.Scan(&posID, &f.Timestamp, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4]); err != nil {
			return fmt.Errorf("postgres: scan fill: %w", err)
		}
		dst := []*decimal.Decimal{&f.Fraction, &f.QuantitySold, &f.PriceUSD, &f.ProceedsUSD, &f.RealizedPnlUSD}
		for i, v := range vals {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("postgres: parse fill %s: %w", posID, err)
			}
			*dst[i] = d
		}

		i, ok := idx[posID]
		if !ok {
			continue
		}
		positions[i].Fills = append(positions[i].Fills, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load fills rows: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
