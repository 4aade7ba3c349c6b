package classifier

import (
	"fmt"
	"math"

	"didibot/internal/clock"
	"didibot/internal/indicator"
	"didibot/internal/model"
)

const (
	// DidiName is the registry name of the Didi Index + Bollinger Bands classifier.
	DidiName = "didi_classifier"

	// observationWindow is the number of extra bars scanned for MA inversions.
	observationWindow = 20
)

// Column names of the enriched rows.
const (
	ColOpen            = "open"
	ColHigh            = "high"
	ColLow             = "low"
	ColClose           = "close"
	ColVolume          = "volume"
	ColDidiFast        = "Didi_fast"
	ColDidiMiddle      = "Didi_middle"
	ColDidiSlow        = "Didi_slow"
	ColBollingerSMA    = "Bollinger_sma"
	ColBollingerUpper  = "Bollinger_upper"
	ColBollingerBottom = "Bollinger_bottom"
	ColDidiTrend       = "Didi_trend"
	ColDidiScore       = "Didi_score"
	ColBollinger       = "Bollinger"
	ColScore           = "Score"
)

// Row is one bar enriched with every indicator and score column.
type Row struct {
	Kline model.Kline

	DidiFast, DidiMiddle, DidiSlow  float64
	BollingerSMA                    float64
	BollingerUpper, BollingerBottom float64
	DidiTrend, DidiScore, Bollinger float64
	Score                           float64
}

// Result flattens the row into an AnalysisResult.
func (r Row) Result() model.AnalysisResult {
	return model.AnalysisResult{
		OpenTime: r.Kline.OpenTime,
		Score:    r.Score,
		Values: map[string]float64{
			ColOpen:            r.Kline.Open,
			ColHigh:            r.Kline.High,
			ColLow:             r.Kline.Low,
			ColClose:           r.Kline.Close,
			ColVolume:          r.Kline.Volume,
			ColDidiFast:        r.DidiFast,
			ColDidiMiddle:      r.DidiMiddle,
			ColDidiSlow:        r.DidiSlow,
			ColBollingerSMA:    r.BollingerSMA,
			ColBollingerUpper:  r.BollingerUpper,
			ColBollingerBottom: r.BollingerBottom,
			ColDidiTrend:       r.DidiTrend,
			ColDidiScore:       r.DidiScore,
			ColBollinger:       r.Bollinger,
			ColScore:           r.Score,
		},
	}
}

// Didi combines the Didi Index trend, the freshness of the latest pair of
// moving-average inversions and the Bollinger Bands opening into a score in [-1, 1].
type Didi struct {
	tf     string
	params model.ClassifierParams
	minRow int
}

// NewDidi validates the setup and builds the classifier.
func NewDidi(setup model.ClassifierSetup) (*Didi, error) {
	if _, err := clock.SecondsIn(setup.TimeFrame); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	p := setup.Setup
	if err := indicator.ValidateDidi(p.DidiIndex.NumberSamples); err != nil {
		return nil, err
	}
	if !indicator.ValidMetric(p.DidiIndex.PriceMetrics) {
		return nil, fmt.Errorf("%w: unknown didi price metric %q", model.ErrValue, p.DidiIndex.PriceMetrics)
	}
	if !indicator.ValidMetric(p.BollingerBands.PriceMetrics) {
		return nil, fmt.Errorf("%w: unknown bollinger price metric %q", model.ErrValue, p.BollingerBands.PriceMetrics)
	}
	if p.BollingerBands.NumberSamples <= 0 || p.BollingerBands.NumberSTDs < 0 {
		return nil, fmt.Errorf("%w: invalid bollinger bands %+v", model.ErrValue, p.BollingerBands)
	}
	for _, w := range []float64{p.WeightIfOnlyUpperBBOpened, p.WeightIfOnlyBottomBBOpened} {
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("%w: bollinger weight %g outside [0,1]", model.ErrValue, w)
		}
	}
	if p.ResultLength <= 0 {
		p.ResultLength = 1
	}

	span := p.DidiIndex.NumberSamples[2]
	if p.BollingerBands.NumberSamples > span {
		span = p.BollingerBands.NumberSamples
	}
	return &Didi{tf: setup.TimeFrame, params: p, minRow: span + observationWindow}, nil
}

func (d *Didi) Name() string      { return DidiName }
func (d *Didi) TimeFrame() string { return d.tf }
func (d *Didi) MinimumRows() int  { return d.minRow }

// Classify returns the last result_length enriched rows.
func (d *Didi) Classify(ks []model.Kline) ([]model.AnalysisResult, error) {
	rows, err := d.Enrich(ks)
	if err != nil {
		return nil, err
	}
	n := d.params.ResultLength
	if n > len(rows) {
		n = len(rows)
	}
	out := make([]model.AnalysisResult, 0, n)
	for _, r := range rows[len(rows)-n:] {
		out = append(out, r.Result())
	}
	return out, nil
}

// Enrich computes every column for every bar of the window.
func (d *Didi) Enrich(ks []model.Kline) ([]Row, error) {
	if len(ks) < d.minRow {
		return nil, fmt.Errorf("%w: classifier needs %d rows, got %d", model.ErrIndex, d.minRow, len(ks))
	}
	p := d.params
	didi, err := indicator.DidiIndex(ks, p.DidiIndex.NumberSamples, p.DidiIndex.PriceMetrics)
	if err != nil {
		return nil, err
	}
	bb, err := indicator.BollingerBands(ks, p.BollingerBands.NumberSamples, p.BollingerBands.NumberSTDs, p.BollingerBands.PriceMetrics)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(ks))
	idxFast, idxSlow := -1, -1
	for i, k := range ks {
		r := Row{
			Kline:           k,
			DidiFast:        didi.Fast[i],
			DidiMiddle:      didi.Middle[i],
			DidiSlow:        didi.Slow[i],
			BollingerSMA:    bb.SMA[i],
			BollingerUpper:  bb.Upper[i],
			BollingerBottom: bb.Bottom[i],
		}
		if i > 0 {
			if inverted(didi.Fast[i-1], didi.Fast[i]) {
				idxFast = i
			}
			if inverted(didi.Slow[i-1], didi.Slow[i]) {
				idxSlow = i
			}
			r.DidiTrend = Trend(didi.Fast[i], didi.Slow[i])
			r.DidiScore = Freshness(idxFast, idxSlow)
			r.Bollinger = d.bollingerWeight(bb.Upper[i-1], bb.Upper[i], bb.Bottom[i-1], bb.Bottom[i])
			r.Score = r.DidiTrend * r.Bollinger * r.DidiScore
		}
		rows[i] = r
	}
	return rows, nil
}

// Trend is +1 when slow < 0 < fast, -1 when fast < 0 < slow and 0 otherwise.
func Trend(fast, slow float64) float64 {
	switch {
	case slow < 0 && fast > 0:
		return 1
	case fast < 0 && slow > 0:
		return -1
	}
	return 0
}

// Freshness scores how close in time the two latest inversions happened.
// It is 0 until both averages have inverted at least once.
func Freshness(idxFast, idxSlow int) float64 {
	if idxFast < 0 || idxSlow < 0 {
		return 0
	}
	dist := idxFast - idxSlow
	if dist < 0 {
		dist = -dist
	}
	return math.Max(0, float64(observationWindow-dist)/observationWindow)
}

func inverted(prev, cur float64) bool {
	if math.IsNaN(prev) || math.IsNaN(cur) {
		return false
	}
	return (prev < 0) != (cur < 0)
}

func (d *Didi) bollingerWeight(upPrev, up, botPrev, bot float64) float64 {
	for _, v := range []float64{upPrev, up, botPrev, bot} {
		if math.IsNaN(v) {
			return 0
		}
	}
	upperOpened, bottomOpened := up > upPrev, bot < botPrev
	switch {
	case upperOpened && bottomOpened:
		return 1
	case upperOpened:
		return d.params.WeightIfOnlyUpperBBOpened
	case bottomOpened:
		return d.params.WeightIfOnlyBottomBBOpened
	}
	return 0
}
