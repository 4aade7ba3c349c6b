// Package indicator computes the technical indicators used by the classifiers.
//
// Every indicator is a pure function of a kline window and returns columns
// aligned with the input: index i of an output belongs to bar i. Values that
// need more samples than are available are NaN.
package indicator

import (
	"fmt"
	"math"

	"didibot/internal/model"
)

// PriceMetrics lists the accepted price metric names.
var PriceMetrics = []string{"o", "h", "l", "c", "oc2", "hl2", "hlc3", "ohlc4"}

// ValidMetric reports whether metric is a known price metric.
func ValidMetric(metric string) bool {
	for _, m := range PriceMetrics {
		if m == metric {
			return true
		}
	}
	return false
}

// Price averages the OHLC fields selected by metric.
func Price(k model.Kline, metric string) (float64, error) {
	switch metric {
	case "o":
		return k.Open, nil
	case "h":
		return k.High, nil
	case "l":
		return k.Low, nil
	case "c":
		return k.Close, nil
	case "oc2":
		return (k.Open + k.Close) / 2, nil
	case "hl2":
		return (k.High + k.Low) / 2, nil
	case "hlc3":
		return (k.High + k.Low + k.Close) / 3, nil
	case "ohlc4":
		return (k.Open + k.High + k.Low + k.Close) / 4, nil
	}
	return 0, fmt.Errorf("%w: unknown price metric %q", model.ErrValue, metric)
}

// Prices maps Price over a window.
func Prices(ks []model.Kline, metric string) ([]float64, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("%w: unknown price metric %q", model.ErrValue, metric)
	}
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i], _ = Price(k, metric)
	}
	return out, nil
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// warmup blanks the first n-1 values, which talib leaves as zero.
func warmup(xs []float64, n int) []float64 {
	for i := 0; i < n-1 && i < len(xs); i++ {
		xs[i] = math.NaN()
	}
	return xs
}
