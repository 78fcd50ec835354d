package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/extract"
	"github.com/alanyoungcy/signalledger/internal/ledger"
	"github.com/alanyoungcy/signalledger/internal/resolver"
	"github.com/alanyoungcy/signalledger/internal/valuation"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// priceBook is a provider answering from a settable symbol -> price map.
type priceBook struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newPriceBook(kv ...string) *priceBook {
	pb := &priceBook{prices: map[string]decimal.Decimal{}}
	for i := 0; i+1 < len(kv); i += 2 {
		pb.prices[kv[i]] = dec(kv[i+1])
	}
	return pb
}

func (p *priceBook) set(key, price string) {
	p.mu.Lock()
	p.prices[key] = dec(price)
	p.mu.Unlock()
}

func (p *priceBook) Name() string                         { return "book" }
func (p *priceBook) Supports(domain.AssetIdentifier) bool { return true }

func (p *priceBook) Resolve(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[id.Key()]
	if !ok {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}
	return domain.ResolvedAsset{Identifier: id, Symbol: id.Key(), PriceUSD: price, Source: "book"}, nil
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	stream    chan domain.StreamMessage
	failPub   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{stream: make(chan domain.StreamMessage, 16)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.failPub {
		return errors.New("bus down")
	}
	b.mu.Lock()
	b.published = append(b.published, published{channel, payload})
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.stream <- domain.StreamMessage{ID: time.Now().Format(time.RFC3339Nano), Payload: payload}
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, _ string, _ string, _ int, block time.Duration) ([]domain.StreamMessage, error) {
	select {
	case m := <-b.stream:
		return []domain.StreamMessage{m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(block):
		return nil, nil
	}
}

func (b *fakeBus) on(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, p := range b.published {
		if p.channel == channel {
			out = append(out, p.payload)
		}
	}
	return out
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	titles []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, title, _ string) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.titles = append(n.titles, title)
	n.mu.Unlock()
	return nil
}

type harness struct {
	engine   *Engine
	ledger   *ledger.Ledger
	book     *priceBook
	bus      *fakeBus
	audit    *fakeAudit
	notifier *fakeNotifier
}

func newHarness(t *testing.T, kv ...string) *harness {
	t.Helper()
	h := &harness{
		book:     newPriceBook(kv...),
		bus:      newFakeBus(),
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
	}
	res := resolver.New([]domain.Provider{h.book}, nil, resolver.Options{}, quietLogger())
	h.ledger = ledger.New(res, ledger.Options{}, quietLogger())
	h.engine = NewEngine(
		extract.New(extract.Options{Cashtags: true}),
		res,
		h.ledger,
		valuation.New(res, quietLogger()),
		h.bus,
		h.audit,
		h.notifier,
		quietLogger(),
	)
	return h
}
