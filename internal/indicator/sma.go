package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"didibot/internal/model"
)

// SMA is the rolling mean over the last n values. It is NaN until n values exist.
func SMA(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) < n {
		return nanSeries(len(prices))
	}
	if n == 1 {
		return append([]float64(nil), prices...)
	}
	return warmup(talib.Sma(prices, n), n)
}

// StdDev is the rolling population standard deviation over the last n values.
func StdDev(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) < n {
		return nanSeries(len(prices))
	}
	if n == 1 {
		return make([]float64, len(prices))
	}
	return warmup(talib.StdDev(prices, n, 1.0), n)
}

// MovingAverage computes SMA(n) over the metric price of each kline.
func MovingAverage(ks []model.Kline, n int, metric string) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: moving average needs a positive sample count, got %d", model.ErrValue, n)
	}
	prices, err := Prices(ks, metric)
	if err != nil {
		return nil, err
	}
	return SMA(prices, n), nil
}
