package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
)

func TestParsePairs(t *testing.T) {
	got, err := parsePairs(" btc/usdt, ETH/USDT ,")
	require.NoError(t, err)
	assert.Equal(t, []model.Ticker{
		{Symbol: "BTCUSDT", Base: "USDT", Quote: "BTC"},
		{Symbol: "ETHUSDT", Base: "USDT", Quote: "ETH"},
	}, got)

	for _, bad := range []string{"", "BTCUSDT", "BTC/", "USDT/USDT"} {
		_, err := parsePairs(bad)
		assert.ErrorIs(t, err, model.ErrValue, bad)
	}
}
