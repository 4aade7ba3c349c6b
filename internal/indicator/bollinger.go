package indicator

import (
	"fmt"

	"didibot/internal/model"
)

// Bands holds the Bollinger Bands columns.
type Bands struct {
	SMA    []float64
	Upper  []float64
	Bottom []float64
}

// BollingerBands computes sma ± k·σ over n samples.
func BollingerBands(ks []model.Kline, n int, k float64, metric string) (Bands, error) {
	if n <= 0 {
		return Bands{}, fmt.Errorf("%w: bollinger bands need a positive sample count, got %d", model.ErrValue, n)
	}
	if k < 0 {
		return Bands{}, fmt.Errorf("%w: bollinger bands need a non-negative deviation count, got %g", model.ErrValue, k)
	}
	prices, err := Prices(ks, metric)
	if err != nil {
		return Bands{}, err
	}
	mean, sd := SMA(prices, n), StdDev(prices, n)
	b := Bands{
		SMA:    mean,
		Upper:  make([]float64, len(prices)),
		Bottom: make([]float64, len(prices)),
	}
	for i := range prices {
		b.Upper[i] = mean[i] + k*sd[i]
		b.Bottom[i] = mean[i] - k*sd[i]
	}
	return b, nil
}
