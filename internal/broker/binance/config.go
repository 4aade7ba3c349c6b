package binance

import "time"

// Config holds the exchange credentials and limits.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // default: https://api.binance.com

	// RequestWeightPerMinute is the used weight at which requests pause.
	RequestWeightPerMinute int
	// FeeRate is charged on the cumulative quote quantity of every fill.
	FeeRate     float64
	HTTPTimeout time.Duration

	// OrderPollInterval and OrderPollAttempts bound the wait for a terminal order status.
	OrderPollInterval time.Duration
	OrderPollAttempts int
}

const (
	defaultBaseURL          = "https://api.binance.com"
	defaultRequestWeight    = 1100
	defaultFeeRate          = 0.001
	defaultHTTPTimeout      = 10 * time.Second
	defaultOrderPollEvery   = time.Second
	defaultOrderPollRetries = 30

	usedWeightHeader = "X-Mbx-Used-Weight-1m"
)

func (c Config) withDefaults() Config {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if out.RequestWeightPerMinute <= 0 {
		out.RequestWeightPerMinute = defaultRequestWeight
	}
	if out.FeeRate <= 0 {
		out.FeeRate = defaultFeeRate
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = defaultHTTPTimeout
	}
	if out.OrderPollInterval <= 0 {
		out.OrderPollInterval = defaultOrderPollEvery
	}
	if out.OrderPollAttempts <= 0 {
		out.OrderPollAttempts = defaultOrderPollRetries
	}
	return out
}
