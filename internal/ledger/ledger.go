// Package ledger owns every position and all of their mutations. Opens and
// sells on one (account, asset) key are serialized; distinct keys proceed in
// parallel.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/metrics"
)

// DefaultDustFraction closes a position once less than 0.1% of the opening
// quantity remains.
var DefaultDustFraction = decimal.RequireFromString("0.001")

// Options tunes a Ledger.
type Options struct {
	DustFraction decimal.Decimal
	Now          func() time.Time
	NewID        func() string
}

// Ledger is the position store. The zero value is not usable; call New.
type Ledger struct {
	resolver domain.AssetResolver
	dust     decimal.Decimal
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	keys     *keyLocks

	mu        sync.RWMutex
	positions map[string]*domain.Position // by position ID
	active    map[string]string           // key -> ID of the ACTIVE position
	latest    map[string]string           // key -> ID of the most recently opened position
	byAccount map[string][]string         // account -> IDs in open order
	revision  uint64
}

// New creates an empty ledger that prices opens and sells through resolver.
func New(resolver domain.AssetResolver, opts Options, logger *slog.Logger) *Ledger {
	if !opts.DustFraction.IsPositive() || opts.DustFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		opts.DustFraction = DefaultDustFraction
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		resolver:  resolver,
		dust:      opts.DustFraction,
		now:       opts.Now,
		newID:     opts.NewID,
		logger:    logger.With(slog.String("component", "ledger")),
		keys:      newKeyLocks(),
		positions: make(map[string]*domain.Position),
		active:    make(map[string]string),
		latest:    make(map[string]string),
		byAccount: make(map[string][]string),
	}
}

func positionKey(account string, id domain.AssetIdentifier) string {
	return account + "|" + string(id.Kind) + ":" + id.Key()
}

func validate(account string, id domain.AssetIdentifier) error {
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("ledger: empty account: %w", domain.ErrInvalidIdentifier)
	}
	if id.IsZero() {
		return domain.ErrInvalidIdentifier
	}
	return nil
}

// Open resolves the asset and opens a position worth investedUSD at the
// current price. A second open while one is ACTIVE fails with
// domain.ErrDuplicateActivePosition and never tops up the existing one.
func (l *Ledger) Open(ctx context.Context, account string, id domain.AssetIdentifier, investedUSD decimal.Decimal) (domain.Position, error) {
	pos, err := l.open(ctx, account, id, investedUSD)
	metrics.LedgerOps.WithLabelValues("open", metrics.Result(err)).Inc()
	return pos, err
}

func (l *Ledger) open(ctx context.Context, account string, id domain.AssetIdentifier, investedUSD decimal.Decimal) (domain.Position, error) {
	if err := validate(account, id); err != nil {
		return domain.Position{}, err
	}
	if !investedUSD.IsPositive() {
		return domain.Position{}, domain.ErrInvalidAmount
	}

	key := positionKey(account, id)
	release := l.keys.lock(key)
	defer release()

	l.mu.RLock()
	_, exists := l.active[key]
	l.mu.RUnlock()
	if exists {
		return domain.Position{}, fmt.Errorf("ledger: open %s for %s: %w", id, account, domain.ErrDuplicateActivePosition)
	}

	asset, err := l.price(ctx, "open", id)
	if err != nil {
		return domain.Position{}, err
	}

	qty := investedUSD.Div(asset.PriceUSD)
	if !qty.IsPositive() {
		return domain.Position{}, fmt.Errorf("ledger: open %s: quantity rounds to zero: %w", id, domain.ErrInvalidAmount)
	}

	symbol := asset.Symbol
	if symbol == "" {
		symbol = id.Key()
	}
	pos := &domain.Position{
		ID:              l.newID(),
		AccountID:       account,
		Asset:           id,
		Symbol:          symbol,
		Source:          asset.Source,
		Quantity:        qty,
		InitialQuantity: qty,
		EntryPriceUSD:   asset.PriceUSD,
		InvestedUSD:     investedUSD,
		Status:          domain.PositionStatusActive,
		OpenedAt:        l.now().UTC(),
		Fills:           []domain.PartialSell{},
	}

	l.mu.Lock()
	l.positions[pos.ID] = pos
	l.active[key] = pos.ID
	l.latest[key] = pos.ID
	l.byAccount[account] = append(l.byAccount[account], pos.ID)
	l.revision++
	activeCount := len(l.active)
	out := pos.Clone()
	l.mu.Unlock()

	metrics.ActivePositions.Set(float64(activeCount))
	l.logger.InfoContext(ctx, "ledger: position opened",
		slog.String("account", account),
		slog.String("asset", id.Key()),
		slog.String("quantity", qty.String()),
		slog.String("entry_price_usd", asset.PriceUSD.String()),
	)
	return out, nil
}

// Sell sells fraction of the remaining quantity at the current price. The
// position closes when fraction is 1 or what remains is at or below the
// dust threshold.
func (l *Ledger) Sell(ctx context.Context, account string, id domain.AssetIdentifier, fraction decimal.Decimal) (domain.SellResult, error) {
	res, err := l.sell(ctx, account, id, fraction)
	metrics.LedgerOps.WithLabelValues("sell", metrics.Result(err)).Inc()
	return res, err
}

func (l *Ledger) sell(ctx context.Context, account string, id domain.AssetIdentifier, fraction decimal.Decimal) (domain.SellResult, error) {
	if err := validate(account, id); err != nil {
		return domain.SellResult{}, err
	}
	one := decimal.NewFromInt(1)
	if !fraction.IsPositive() || fraction.GreaterThan(one) {
		return domain.SellResult{}, domain.ErrInvalidFraction
	}

	key := positionKey(account, id)
	release := l.keys.lock(key)
	defer release()

	l.mu.RLock()
	posID, ok := l.active[key]
	var cur domain.Position
	if ok {
		cur = l.positions[posID].Clone()
	}
	_, everOpened := l.latest[key]
	l.mu.RUnlock()

	if !ok {
		if everOpened {
			return domain.SellResult{}, fmt.Errorf("ledger: sell %s for %s: %w", id, account, domain.ErrPositionClosed)
		}
		return domain.SellResult{}, fmt.Errorf("ledger: sell %s for %s: %w", id, account, domain.ErrNoActivePosition)
	}

	asset, err := l.price(ctx, "sell", id)
	if err != nil {
		return domain.SellResult{}, err
	}

	sold := cur.Quantity
	if !fraction.Equal(one) {
		sold = cur.Quantity.Mul(fraction)
	}
	proceeds := sold.Mul(asset.PriceUSD)
	now := l.now().UTC()
	fill := domain.PartialSell{
		Timestamp:      now,
		Fraction:       fraction,
		QuantitySold:   sold,
		PriceUSD:       asset.PriceUSD,
		ProceedsUSD:    proceeds,
		RealizedPnlUSD: proceeds.Sub(sold.Mul(cur.EntryPriceUSD)),
	}

	next := cur.Clone()
	next.Quantity = cur.Quantity.Sub(sold)
	next.Fills = append(next.Fills, fill)
	if fraction.Equal(one) || next.Quantity.LessThanOrEqual(l.dustThreshold(cur)) {
		next.Status = domain.PositionStatusClosed
		next.ClosedAt = &now
	}

	l.mu.Lock()
	l.positions[posID] = &next
	if !next.IsActive() {
		delete(l.active, key)
	}
	l.revision++
	activeCount := len(l.active)
	out := domain.SellResult{Fill: fill, Position: next.Clone()}
	l.mu.Unlock()

	metrics.ActivePositions.Set(float64(activeCount))
	l.logger.InfoContext(ctx, "ledger: position sold",
		slog.String("account", account),
		slog.String("asset", id.Key()),
		slog.String("fraction", fraction.String()),
		slog.String("quantity_sold", sold.String()),
		slog.String("realized_pnl_usd", fill.RealizedPnlUSD.String()),
		slog.String("status", string(next.Status)),
	)
	return out, nil
}

func (l *Ledger) dustThreshold(p domain.Position) decimal.Decimal {
	return p.InitialQuantity.Mul(l.dust)
}

// price resolves id and insists on a usable price.
func (l *Ledger) price(ctx context.Context, op string, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	asset, err := l.resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUnresolved) {
			return domain.ResolvedAsset{}, fmt.Errorf("ledger: %s %s: %w", op, id, domain.ErrUnresolvedAsset)
		}
		return domain.ResolvedAsset{}, fmt.Errorf("ledger: %s %s: %w", op, id, err)
	}
	if !asset.HasPrice() {
		return domain.ResolvedAsset{}, fmt.Errorf("ledger: %s %s: no price from %s: %w", op, id, asset.Source, domain.ErrUnresolvedAsset)
	}
	return asset, nil
}

// Get returns the ACTIVE position for the key or, failing that, the most
// recently opened closed one. It returns domain.ErrNotFound when the key was
// never opened.
func (l *Ledger) Get(account string, id domain.AssetIdentifier) (domain.Position, error) {
	key := positionKey(account, id)

	l.mu.RLock()
	defer l.mu.RUnlock()

	posID, ok := l.active[key]
	if !ok {
		posID, ok = l.latest[key]
	}
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return l.positions[posID].Clone(), nil
}

// List returns every position of account, active and closed, ordered by
// OpenedAt.
func (l *Ledger) List(account string) []domain.Position {
	l.mu.RLock()
	ids := l.byAccount[account]
	out := make([]domain.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.positions[id].Clone())
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Accounts returns every account holding at least one position, sorted.
func (l *Ledger) Accounts() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.byAccount))
	for acc := range l.byAccount {
		out = append(out, acc)
	}
	l.mu.RUnlock()

	sort.Strings(out)
	return out
}

// ActiveCount reports how many positions are ACTIVE.
func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// Revision increases on every successful mutation and on Restore.
func (l *Ledger) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}
