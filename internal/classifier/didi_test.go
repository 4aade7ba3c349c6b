package classifier

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
)

func setup() model.ClassifierSetup {
	return model.ClassifierSetup{
		Name:      DidiName,
		TimeFrame: "1h",
		Setup: model.ClassifierParams{
			DidiIndex:                  model.DidiParams{NumberSamples: []int{1, 2, 3}, PriceMetrics: "c"},
			BollingerBands:             model.BollingerParams{NumberSamples: 3, NumberSTDs: 2, PriceMetrics: "c"},
			WeightIfOnlyUpperBBOpened:  0.5,
			WeightIfOnlyBottomBBOpened: 0.5,
			ResultLength:               3,
		},
	}
}

func klines(prices []float64) []model.Kline {
	ks := make([]model.Kline, len(prices))
	for i, p := range prices {
		ks[i] = model.Kline{OpenTime: int64(i) * 3600, Open: p, High: p, Low: p, Close: p, Volume: 1}
	}
	return ks
}

// flat for 20 bars, a dip, then a rally that inverts both averages one bar apart.
func dipAndRally() []float64 {
	p := make([]float64, 0, 29)
	for i := 0; i < 20; i++ {
		p = append(p, 100)
	}
	return append(p, 100, 99, 98, 97, 96, 97, 99, 102, 106)
}

func TestNew_Registry(t *testing.T) {
	c, err := New(setup())
	require.NoError(t, err)
	assert.Equal(t, DidiName, c.Name())
	assert.Equal(t, "1h", c.TimeFrame())
	assert.Equal(t, 23, c.MinimumRows())

	s := setup()
	s.Name = "nope"
	_, err = New(s)
	assert.True(t, errors.Is(err, model.ErrValue))
	assert.Contains(t, Names(), DidiName)
}

func TestNewDidi_RejectsBadSetup(t *testing.T) {
	mutations := map[string]func(*model.ClassifierSetup){
		"time frame":    func(s *model.ClassifierSetup) { s.TimeFrame = "1x" },
		"ns order":      func(s *model.ClassifierSetup) { s.Setup.DidiIndex.NumberSamples = []int{3, 2, 1} },
		"ns length":     func(s *model.ClassifierSetup) { s.Setup.DidiIndex.NumberSamples = []int{3, 8} },
		"didi metric":   func(s *model.ClassifierSetup) { s.Setup.DidiIndex.PriceMetrics = "vwap" },
		"bb metric":     func(s *model.ClassifierSetup) { s.Setup.BollingerBands.PriceMetrics = "" },
		"bb samples":    func(s *model.ClassifierSetup) { s.Setup.BollingerBands.NumberSamples = 0 },
		"upper weight":  func(s *model.ClassifierSetup) { s.Setup.WeightIfOnlyUpperBBOpened = 1.5 },
		"bottom weight": func(s *model.ClassifierSetup) { s.Setup.WeightIfOnlyBottomBBOpened = -0.1 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			s := setup()
			mutate(&s)
			_, err := NewDidi(s)
			assert.True(t, errors.Is(err, model.ErrValue), "got %v", err)
		})
	}
}

func TestMinimumRows_UsesLargestSpan(t *testing.T) {
	s := setup()
	s.Setup.DidiIndex.NumberSamples = []int{3, 8, 20}
	s.Setup.BollingerBands.NumberSamples = 30
	d, err := NewDidi(s)
	require.NoError(t, err)
	assert.Equal(t, 50, d.MinimumRows())

	_, err = d.Classify(klines(make([]float64, 49)))
	assert.True(t, errors.Is(err, model.ErrIndex))
}

func TestClassify_DipAndRally(t *testing.T) {
	d, err := NewDidi(setup())
	require.NoError(t, err)

	res, err := d.Classify(klines(dipAndRally()))
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, int64(26*3600), res[0].OpenTime)
	assert.Equal(t, 1.0, res[0].Values[ColDidiTrend])
	assert.InDelta(t, 0.95, res[0].Values[ColDidiScore], 1e-12)
	assert.Equal(t, 1.0, res[0].Values[ColBollinger])
	assert.InDelta(t, 0.95, res[0].Score, 1e-12)

	last := res[2]
	assert.Greater(t, last.Values[ColDidiFast], 0.0)
	assert.Less(t, last.Values[ColDidiSlow], 0.0)
	assert.Equal(t, 0.5, last.Values[ColBollinger])
	assert.InDelta(t, 0.475, last.Score, 1e-12)
	assert.Equal(t, 106.0, last.Values[ColClose])
	assert.Equal(t, last.Score, last.Values[ColScore])
}

func TestClassify_DefaultsToOneRow(t *testing.T) {
	s := setup()
	s.Setup.ResultLength = 0
	d, err := NewDidi(s)
	require.NoError(t, err)

	res, err := d.Classify(klines(dipAndRally()))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(28*3600), res[0].OpenTime)
}

func TestEnrich_NoInversionMeansNoScore(t *testing.T) {
	d, err := NewDidi(setup())
	require.NoError(t, err)
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	rows, err := d.Enrich(klines(prices))
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, 0.0, r.DidiScore)
		assert.Equal(t, 0.0, r.Score)
	}
}

func TestEnrich_ScoreBoundsAndSign(t *testing.T) {
	s := setup()
	s.Setup.DidiIndex.NumberSamples = []int{3, 8, 20}
	s.Setup.BollingerBands.NumberSamples = 20
	d, err := NewDidi(s)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	prices := make([]float64, 400)
	p := 100.0
	for i := range prices {
		p *= 1 + (rng.Float64()-0.5)*0.04
		prices[i] = p
	}
	rows, err := d.Enrich(klines(prices))
	require.NoError(t, err)
	for _, r := range rows {
		assert.False(t, math.IsNaN(r.Score))
		assert.GreaterOrEqual(t, r.Score, -1.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.GreaterOrEqual(t, r.Bollinger*r.DidiScore, 0.0)
		if r.Score != 0 {
			assert.Equal(t, math.Signbit(r.DidiTrend), math.Signbit(r.Score))
		}
	}
}

func TestTrendAndFreshness(t *testing.T) {
	assert.Equal(t, 1.0, Trend(0.05, -0.02))
	assert.Equal(t, -1.0, Trend(-0.05, 0.02))
	assert.Equal(t, 0.0, Trend(0.05, 0.02))
	assert.Equal(t, 0.0, Trend(math.NaN(), -0.02))

	assert.Equal(t, 0.0, Freshness(-1, 5))
	assert.Equal(t, 1.0, Freshness(7, 7))
	assert.InDelta(t, 0.75, Freshness(10, 5), 1e-12)
	assert.Equal(t, 0.0, Freshness(40, 5))
}
