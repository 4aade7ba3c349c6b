package model

import "context"

// BrokerQuery is the read side of a broker.
type BrokerQuery interface {
	Name() string
	// TimeFrames lists the supported time frames, finest first.
	TimeFrames() []string
	ServerTime(ctx context.Context) (int64, error)
	MaxRequestsLimitHit(ctx context.Context) (bool, error)
	GetKlines(ctx context.Context, ticker Ticker, tf string, req KlinesRequest) ([]Kline, error)
	OldestKline(ctx context.Context, ticker Ticker, tf string) (Kline, error)
	// GetPrice returns the price at atTime, or the current price when atTime is 0.
	GetPrice(ctx context.Context, ticker Ticker, atTime int64) (float64, error)
	GetPortfolio(ctx context.Context, ticker Ticker) (Portfolio, error)
	GetMinLotSize(ctx context.Context, ticker Ticker) (float64, error)
}

// BrokerExecute places orders. Rejections are reported as warnings on the
// returned order, errors only for failures the caller can retry.
type BrokerExecute interface {
	Execute(ctx context.Context, order Order) (Order, error)
}

// Broker is a full broker port.
type Broker interface {
	BrokerQuery
	BrokerExecute
}

// KlinesGetter returns klines for one ticker at one time frame.
type KlinesGetter interface {
	TimeFrame() string
	OldestOpenTime(ctx context.Context) (int64, error)
	NewestOpenTime(ctx context.Context) (int64, error)
	Get(ctx context.Context, sel Selection) ([]Kline, error)
}

// Classifier turns a kline window into scored rows.
type Classifier interface {
	Name() string
	TimeFrame() string
	MinimumRows() int
	Classify(klines []Kline) ([]AnalysisResult, error)
}

// Notifier fans a message out to the configured broadcasters.
type Notifier interface {
	Debug(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
	Trade(ctx context.Context, msg string)
}

// SeriesWriter persists the per-monitor result and order time series.
type SeriesWriter interface {
	WriteResult(ctx context.Context, operation, symbol string, r AnalysisResult) error
	WriteOrder(ctx context.Context, operation, symbol string, o Order) error
}

// SeriesReader reads the last n entries of the per-monitor series, oldest first.
type SeriesReader interface {
	Results(ctx context.Context, operation, symbol string, n int) ([]AnalysisResult, error)
	Orders(ctx context.Context, operation, symbol string, n int) ([]Order, error)
}
