package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	evmAddr  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

func TestExtractAddressesAndTickers(t *testing.T) {
	e := New(Options{})
	got := e.Extract("🚀 New call: WIF looks ready, CA " + bonkMint + " pairs vs SOL and USDC")

	require.Len(t, got, 2)
	assert.Equal(t, domain.NewTicker("WIF"), got[0])
	assert.Equal(t, domain.NewAddress(domain.ChainSolana, bonkMint), got[1])
}

func TestExtractDropsInvalidBase58(t *testing.T) {
	e := New(Options{})
	// Right alphabet and length, but does not decode to 32 bytes.
	got := e.Extract("junk ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijk here")
	assert.Empty(t, got)
}

func TestExtractDeduplicates(t *testing.T) {
	e := New(Options{Cashtags: true})
	got := e.Extract("PEPE PEPE $pepe " + usdcMint + " " + usdcMint)
	require.Len(t, got, 2)
	assert.Equal(t, "PEPE", got[0].Key())
	assert.Equal(t, usdcMint, got[1].Value)
}

func TestExtractStoplistIsConfigurable(t *testing.T) {
	got := New(Options{}).Extract("BTC ETH DOGE")
	require.Len(t, got, 1)
	assert.Equal(t, "DOGE", got[0].Value)

	got = New(Options{Stoplist: []string{"doge"}}).Extract("BTC DOGE")
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Value)
}

func TestExtractTickerLengthBounds(t *testing.T) {
	got := New(Options{}).Extract("AB ABC ABCDEFGHIJ ABCDEFGHIJK")
	require.Len(t, got, 2)
	assert.Equal(t, "ABC", got[0].Value)
	assert.Equal(t, "ABCDEFGHIJ", got[1].Value)
}

func TestExtractEVMAddresses(t *testing.T) {
	lower := strings.ToLower(evmAddr)

	got := New(Options{}).Extract("ca " + lower)
	assert.Empty(t, got, "evm recognition is opt-in")

	got = New(Options{EVMAddresses: true}).Extract("ca " + lower)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NewAddress(domain.ChainEVM, evmAddr), got[0])
}

func TestExtractRoundTrip(t *testing.T) {
	e := New(Options{EVMAddresses: true})
	ids := []domain.AssetIdentifier{
		domain.NewTicker("TICKR"),
		domain.NewAddress(domain.ChainSolana, bonkMint),
		domain.NewTicker("MOODENG"),
		domain.NewAddress(domain.ChainEVM, evmAddr),
		domain.NewAddress(domain.ChainSolana, usdcMint),
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Value
	}

	got := e.Extract(strings.Join(parts, " "))
	assert.Equal(t, ids, got)
	assert.Equal(t, got, e.Extract(strings.Join(parts, "\n")))
}

func TestParse(t *testing.T) {
	e := New(Options{EVMAddresses: true})

	tests := []struct {
		in   string
		want domain.AssetIdentifier
	}{
		{"tickr", domain.NewTicker("TICKR")},
		{"$wif", domain.NewTicker("WIF")},
		{"SOL", domain.NewTicker("SOL")},
		{bonkMint, domain.NewAddress(domain.ChainSolana, bonkMint)},
		{strings.ToLower(evmAddr), domain.NewAddress(domain.ChainEVM, evmAddr)},
	}
	for _, tt := range tests {
		got, err := e.Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "x", "not a ticker", "0x1234"} {
		_, err := e.Parse(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidIdentifier, bad)
	}
}

func TestTickerKeyIsCaseInsensitive(t *testing.T) {
	a := domain.AssetIdentifier{Kind: domain.AssetKindTicker, Value: "wif"}
	assert.True(t, a.Equal(domain.NewTicker("WIF")))

	b := domain.NewAddress(domain.ChainSolana, bonkMint)
	c := domain.NewAddress(domain.ChainSolana, strings.ToLower(bonkMint))
	assert.False(t, b.Equal(c))
}
