package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name string
		id   domain.AssetIdentifier
		want string
	}{
		{"ticker upper-cased", domain.NewTicker("wif"), "resolve:ticker:-:WIF"},
		{"solana verbatim", domain.NewAddress(domain.ChainSolana, "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"),
			"resolve:address:solana:DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"},
		{"evm", domain.NewAddress(domain.ChainEVM, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"),
			"resolve:address:evm:0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveKey(tt.id))
		})
	}
}

func TestLockAndRateLimitKeys(t *testing.T) {
	assert.Equal(t, "lock:ledger:snapshot", lockKey("ledger:snapshot"))
	assert.Equal(t, "ratelimit:api:127.0.0.1", rateLimitKey("api:127.0.0.1"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "ZADD")
}

func TestPayloadBytes(t *testing.T) {
	assert.Equal(t, []byte("hi"), payloadBytes("hi"))
	assert.Equal(t, []byte("raw"), payloadBytes([]byte("raw")))
	assert.Nil(t, payloadBytes(nil))
	assert.Nil(t, payloadBytes(42))
}
