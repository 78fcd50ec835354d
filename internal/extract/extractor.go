// Package extract recognises candidate asset identifiers in free text. It
// performs no I/O.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	solana "github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// DefaultStoplist holds majors and quote currencies that show up in almost
// every alert and are never the subject of one.
var DefaultStoplist = []string{"BTC", "ETH", "USD", "SOL", "USDT", "USDC", "BUSD", "CAKE", "BSC"}

var (
	solanaAddrRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
	evmAddrRe    = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	tickerRe     = regexp.MustCompile(`\b[A-Z]{3,10}\b`)
	cashtagRe    = regexp.MustCompile(`\$([A-Za-z]{3,10})\b`)
	tickerOnlyRe = regexp.MustCompile(`^[A-Za-z]{3,10}$`)
)

// Options configures an Extractor.
type Options struct {
	// Stoplist overrides DefaultStoplist when non-nil.
	Stoplist []string
	// EVMAddresses enables recognition of 0x-prefixed EVM addresses.
	EVMAddresses bool
	// Cashtags enables recognition of $TICKER tokens in any case.
	Cashtags bool
}

// Extractor turns free text into asset identifiers. It is safe for
// concurrent use.
type Extractor struct {
	stop     map[string]struct{}
	evm      bool
	cashtags bool
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	list := opts.Stoplist
	if list == nil {
		list = DefaultStoplist
	}
	stop := make(map[string]struct{}, len(list))
	for _, s := range list {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			stop[s] = struct{}{}
		}
	}
	return &Extractor{stop: stop, evm: opts.EVMAddresses, cashtags: opts.Cashtags}
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// Extract returns every identifier found in text, deduplicated, in order of
// first appearance. Address matches take precedence over ticker matches that
// overlap them.
func (e *Extractor) Extract(text string) []domain.AssetIdentifier {
	var (
		out   []domain.AssetIdentifier
		seen  = make(map[string]struct{})
		taken []span
	)
	add := func(id domain.AssetIdentifier) {
		k := string(id.Kind) + ":" + id.Key()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, id)
	}

	type match struct {
		at int
		id domain.AssetIdentifier
	}
	var found []match

	for _, loc := range solanaAddrRe.FindAllStringIndex(text, -1) {
		tok := text[loc[0]:loc[1]]
		if _, err := solana.PublicKeyFromBase58(tok); err != nil {
			continue
		}
		taken = append(taken, span{loc[0], loc[1]})
		found = append(found, match{loc[0], domain.NewAddress(domain.ChainSolana, tok)})
	}

	if e.evm {
		for _, loc := range evmAddrRe.FindAllStringIndex(text, -1) {
			tok := text[loc[0]:loc[1]]
			if !common.IsHexAddress(tok) {
				continue
			}
			taken = append(taken, span{loc[0], loc[1]})
			found = append(found, match{loc[0], domain.NewAddress(domain.ChainEVM, common.HexToAddress(tok).Hex())})
		}
	}

	free := func(s span) bool {
		for _, t := range taken {
			if t.overlaps(s) {
				return false
			}
		}
		return true
	}

	for _, loc := range tickerRe.FindAllStringIndex(text, -1) {
		s := span{loc[0], loc[1]}
		tok := text[loc[0]:loc[1]]
		if !free(s) || e.stopped(tok) {
			continue
		}
		found = append(found, match{loc[0], domain.NewTicker(tok)})
	}

	if e.cashtags {
		for _, loc := range cashtagRe.FindAllStringSubmatchIndex(text, -1) {
			s := span{loc[0], loc[1]}
			tok := strings.ToUpper(text[loc[2]:loc[3]])
			if !free(s) || e.stopped(tok) {
				continue
			}
			found = append(found, match{loc[0], domain.NewTicker(tok)})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].at < found[j].at })
	for _, m := range found {
		add(m.id)
	}
	return out
}

func (e *Extractor) stopped(tok string) bool {
	_, ok := e.stop[strings.ToUpper(tok)]
	return ok
}

// Parse classifies a single caller-supplied identifier. A leading "$" is
// accepted on tickers. Stoplisted tickers are still accepted here since the
// caller names the asset explicitly.
func (e *Extractor) Parse(raw string) (domain.AssetIdentifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.AssetIdentifier{}, fmt.Errorf("extract: parse %q: %w", raw, domain.ErrInvalidIdentifier)
	}
	if evmAddrRe.MatchString(s) && len(s) == 42 && common.IsHexAddress(s) {
		if !e.evm {
			return domain.AssetIdentifier{}, fmt.Errorf("extract: parse %q: evm addresses disabled: %w", raw, domain.ErrInvalidIdentifier)
		}
		return domain.NewAddress(domain.ChainEVM, common.HexToAddress(s).Hex()), nil
	}
	if len(s) >= 32 && len(s) <= 44 {
		if _, err := solana.PublicKeyFromBase58(s); err == nil {
			return domain.NewAddress(domain.ChainSolana, s), nil
		}
	}
	t := strings.TrimPrefix(s, "$")
	if tickerOnlyRe.MatchString(t) {
		return domain.NewTicker(t), nil
	}
	return domain.AssetIdentifier{}, fmt.Errorf("extract: parse %q: %w", raw, domain.ErrInvalidIdentifier)
}
