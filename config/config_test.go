package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
)

const sample = `
name = "alpha"
mode = "backtesting"
broker = "binance"

[wallet]
USDT = 1000.0

[[monitors]]
symbol = "BTCUSDT"
base = "USDT"
quote = "BTC"
is_master = true

[[monitors]]
symbol = "ETHUSDT"
base = "USDT"
quote = "ETH"

[setup.classifier]
name = "didi_classifier"
time_frame = "1h"

[setup.classifier.setup]
weight_if_only_upper_bb_opened = 0.5
weight_if_only_bottom_bb_opened = 0.5
result_length = 1

[setup.classifier.setup.didi_index]
number_samples = [3, 8, 20]
price_metrics = "c"

[setup.classifier.setup.bollinger_bands]
number_samples = 20
number_STDs = 2.0
price_metrics = "c"

[setup.stoploss]
is_on = true
name = "stop_trailing"
percent = 5.0

[setup.trading]
score_that_triggers_long_side = 0.3
score_that_triggers_short_side = -0.3
allow_naked_sells = false

[setup.notifier]
broadcasters = ["print_on_screen"]

[setup.backtesting]
fee_rate_decimal = 0.001
since = "2024-01-01 00:00:00"
until = "2024-02-01 00:00:00"
`

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "alpha", op.Name)
	assert.Equal(t, model.ModeBacktesting, op.Mode)
	assert.Equal(t, 1000.0, op.Wallet["USDT"])
	require.Len(t, op.Monitors, 2)
	assert.True(t, op.Monitors[0].IsMaster)
	assert.True(t, op.Monitors[1].IsActive)
	assert.Equal(t, op.ID, op.Monitors[1].OperationID)
	assert.Equal(t, model.SideZeroed, op.Monitors[0].Position.Side)

	assert.Equal(t, 1.0, op.Setup.Trading.Leverage)
	assert.Equal(t, model.OrderMarket, op.Setup.Trading.DefaultOrderType)
	assert.Equal(t, "o", op.Setup.Backtesting.PriceMetrics)
	assert.Equal(t, []int{3, 8, 20}, op.Setup.Classifier.Setup.DidiIndex.NumberSamples)
	assert.Equal(t, 2.0, op.Setup.Classifier.Setup.BollingerBands.NumberSTDs)
}

func TestParseOperationRejects(t *testing.T) {
	cases := map[string][2]string{
		"two masters":        {`quote = "ETH"`, "quote = \"ETH\"\nis_master = true"},
		"no master":          {"is_master = true", ""},
		"unordered samples":  {"[3, 8, 20]", "[8, 3, 20]"},
		"short above long":   {"score_that_triggers_short_side = -0.3", "score_that_triggers_short_side = 0.5"},
		"bad time frame":     {`time_frame = "1h"`, `time_frame = "7m"`},
		"unknown classifier": {`name = "didi_classifier"`, `name = "magic"`},
		"unknown broker":     {`broker = "binance"`, `broker = "kraken"`},
		"bad metric":         {`price_metrics = "c"`, `price_metrics = "x"`},
		"bad mode":           {`mode = "backtesting"`, `mode = "paper"`},
		"bad since":          {`since = "2024-01-01 00:00:00"`, `since = "yesterday"`},
		"since after until":  {`since = "2024-01-01 00:00:00"`, `since = "2024-03-01 00:00:00"`},
		"bad broadcaster":    {`["print_on_screen"]`, `["pigeon"]`},
		"unknown stop":       {`name = "stop_trailing"`, `name = "stop_fixed"`},
		"weight out of range": {
			"weight_if_only_upper_bb_opened = 0.5", "weight_if_only_upper_bb_opened = 1.5",
		},
		"unknown key": {`allow_naked_sells = false`, "allow_naked_sells = false\nmargin = true"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			src := strings.Replace(sample, c[0], c[1], 1)
			require.NotEqual(t, sample, src)
			_, err := ParseOperation([]byte(src))
			assert.ErrorIs(t, err, model.ErrValue)
		})
	}
}

func TestLoadOperationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alpha.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	op, err := LoadOperation(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha", op.Name)

	_, err = LoadOperation(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RECORDS_PER_REQUEST=500\nEMAIL_TO=a@x, b@x\n"), 0o600))
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("INFINITE_RETRY", "false")
	t.Setenv("REQUEST_WEIGHT_PER_MINUTE", "nope")
	t.Cleanup(func() {
		os.Unsetenv("RECORDS_PER_REQUEST")
		os.Unsetenv("EMAIL_TO")
	})

	c := Load(path)
	assert.Equal(t, 500, c.RecordsPerRequest)
	assert.Equal(t, []string{"a@x", "b@x"}, c.EmailTo)
	assert.Equal(t, 3*time.Second, c.HTTPTimeout)
	assert.False(t, c.InfiniteRetry)
	assert.Equal(t, 1100, c.RequestWeightPerMinute)
	assert.Equal(t, "sqlite3://data/operations.db", c.OperationsDSN)
}
