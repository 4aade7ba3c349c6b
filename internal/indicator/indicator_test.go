package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
)

func closes(prices ...float64) []model.Kline {
	ks := make([]model.Kline, len(prices))
	for i, p := range prices {
		ks[i] = model.Kline{OpenTime: int64(i) * 60, Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1}
	}
	return ks
}

func constant(n int, p float64) []model.Kline {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = p
	}
	return closes(prices...)
}

func TestPrice_Metrics(t *testing.T) {
	k := model.Kline{Open: 1, High: 4, Low: 2, Close: 3}
	cases := map[string]float64{
		"o": 1, "h": 4, "l": 2, "c": 3,
		"oc2": 2, "hl2": 3, "hlc3": 3, "ohlc4": 2.5,
	}
	for metric, want := range cases {
		got, err := Price(k, metric)
		require.NoError(t, err, metric)
		assert.InDelta(t, want, got, 1e-12, metric)
	}

	_, err := Price(k, "vwap")
	assert.True(t, errors.Is(err, model.ErrValue))
	_, err = Prices(closes(1, 2), "x")
	assert.True(t, errors.Is(err, model.ErrValue))
}

func TestSMA_HandCalculated(t *testing.T) {
	got := SMA([]float64{100, 102, 104, 103, 105}, 3)
	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 102.0, got[2], 1e-9)
	assert.InDelta(t, 103.0, got[3], 1e-9)
	assert.InDelta(t, 104.0, got[4], 1e-9)
}

func TestSMA_ConstantSeries(t *testing.T) {
	got, err := MovingAverage(constant(30, 42), 7, "c")
	require.NoError(t, err)
	for i, v := range got {
		if i < 6 {
			assert.True(t, math.IsNaN(v), "index %d", i)
			continue
		}
		assert.InDelta(t, 42.0, v, 1e-9, "index %d", i)
	}
}

func TestSMA_ShortInput(t *testing.T) {
	got := SMA([]float64{1, 2}, 5)
	require.Len(t, got, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))

	_, err := MovingAverage(closes(1, 2), 0, "c")
	assert.True(t, errors.Is(err, model.ErrValue))
}

func TestStdDev_Population(t *testing.T) {
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	assert.InDelta(t, 2.0, got[7], 1e-9)
}

func TestValidateDidi(t *testing.T) {
	assert.NoError(t, ValidateDidi([]int{3, 8, 20}))
	for _, ns := range [][]int{{3, 8}, {8, 3, 20}, {3, 3, 20}, {0, 8, 20}, {3, 8, 20, 40}} {
		assert.True(t, errors.Is(ValidateDidi(ns), model.ErrValue), "%v", ns)
	}
}

func TestDidiIndex_Crossover(t *testing.T) {
	// ns = {1,2,3} on prices 98,102,105 gives s1=105, s2=103.5, s3=101.666...
	d, err := DidiIndex(closes(98, 102, 105), []int{1, 2, 3}, "c")
	require.NoError(t, err)
	assert.InDelta(t, 105/103.5-1, d.Fast[2], 1e-12)
	assert.InDelta(t, (305.0/3)/103.5-1, d.Slow[2], 1e-12)
	assert.Equal(t, 0.0, d.Middle[2])
	assert.Greater(t, d.Fast[2], 0.0)
	assert.Less(t, d.Slow[2], 0.0)
	assert.True(t, math.IsNaN(d.Slow[1]))
}

func TestDidiIndex_ConstantIsFlat(t *testing.T) {
	d, err := DidiIndex(constant(40, 10), []int{3, 8, 20}, "hlc3")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d.Fast[39], 1e-12)
	assert.InDelta(t, 0.0, d.Slow[39], 1e-12)
}

func TestBollinger_ZeroDeviationsCollapseToSMA(t *testing.T) {
	ks := closes(1, 5, 2, 8, 3, 9, 4, 7)
	b, err := BollingerBands(ks, 4, 0, "c")
	require.NoError(t, err)
	for i := 3; i < len(ks); i++ {
		assert.InDelta(t, b.SMA[i], b.Upper[i], 1e-12)
		assert.InDelta(t, b.SMA[i], b.Bottom[i], 1e-12)
	}
}

func TestBollinger_ConstantSeriesHasNoWidth(t *testing.T) {
	b, err := BollingerBands(constant(25, 50), 20, 2, "c")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, b.Upper[24], 1e-9)
	assert.InDelta(t, 50.0, b.Bottom[24], 1e-9)
	assert.True(t, math.IsNaN(b.Upper[18]))
}

func TestBollinger_Widths(t *testing.T) {
	b, err := BollingerBands(closes(2, 4, 4, 4, 5, 5, 7, 9), 8, 2, "c")
	require.NoError(t, err)
	assert.InDelta(t, 5.0+4.0, b.Upper[7], 1e-9)
	assert.InDelta(t, 5.0-4.0, b.Bottom[7], 1e-9)

	_, err = BollingerBands(closes(1), 0, 2, "c")
	assert.True(t, errors.Is(err, model.ErrValue))
	_, err = BollingerBands(closes(1), 2, -1, "c")
	assert.True(t, errors.Is(err, model.ErrValue))
}
