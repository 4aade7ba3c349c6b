package model

// OperationalSetup is the configuration of one Operation.
type OperationalSetup struct {
	Classifier  ClassifierSetup  `json:"classifier" toml:"classifier"`
	Stoploss    StoplossSetup    `json:"stoploss" toml:"stoploss"`
	Trading     TradingSetup     `json:"trading" toml:"trading"`
	Notifier    NotifierSetup    `json:"notifier" toml:"notifier"`
	Backtesting BacktestingSetup `json:"backtesting" toml:"backtesting"`
}

// ClassifierSetup names a registered classifier and carries its parameters.
type ClassifierSetup struct {
	Name      string           `json:"name" toml:"name" validate:"required"`
	TimeFrame string           `json:"time_frame" toml:"time_frame" validate:"required"`
	Setup     ClassifierParams `json:"setup" toml:"setup"`
}

// ClassifierParams are the Didi Index + Bollinger Bands parameters.
type ClassifierParams struct {
	DidiIndex                  DidiParams      `json:"didi_index" toml:"didi_index"`
	BollingerBands             BollingerParams `json:"bollinger_bands" toml:"bollinger_bands"`
	WeightIfOnlyUpperBBOpened  float64         `json:"weight_if_only_upper_bb_opened" toml:"weight_if_only_upper_bb_opened" validate:"gte=0,lte=1"`
	WeightIfOnlyBottomBBOpened float64         `json:"weight_if_only_bottom_bb_opened" toml:"weight_if_only_bottom_bb_opened" validate:"gte=0,lte=1"`
	ResultLength               int             `json:"result_length" toml:"result_length" validate:"gte=0"`
}

// DidiParams configures the Didi Index.
type DidiParams struct {
	NumberSamples []int  `json:"number_samples" toml:"number_samples" validate:"len=3,dive,gt=0"`
	PriceMetrics  string `json:"price_metrics" toml:"price_metrics" validate:"oneof=o h l c oc2 hl2 hlc3 ohlc4"`
}

// BollingerParams configures the Bollinger Bands.
type BollingerParams struct {
	NumberSamples int     `json:"number_samples" toml:"number_samples" validate:"gt=0"`
	NumberSTDs    float64 `json:"number_STDs" toml:"number_STDs" validate:"gte=0"`
	PriceMetrics  string  `json:"price_metrics" toml:"price_metrics" validate:"oneof=o h l c oc2 hl2 hlc3 ohlc4"`
}

// StoplossSetup configures the optional stop-loss evaluator.
type StoplossSetup struct {
	IsOn    bool    `json:"is_on" toml:"is_on"`
	Name    string  `json:"name" toml:"name" validate:"required_if=IsOn true"`
	Percent float64 `json:"percent" toml:"percent" validate:"gte=0,lt=100"`
}

// TradingSetup maps scores to sides and sizes orders.
type TradingSetup struct {
	ScoreLong        float64   `json:"score_that_triggers_long_side" toml:"score_that_triggers_long_side" validate:"gte=-1,lte=1"`
	ScoreShort       float64   `json:"score_that_triggers_short_side" toml:"score_that_triggers_short_side" validate:"gte=-1,lte=1"`
	DefaultOrderType OrderType `json:"default_order_type" toml:"default_order_type" validate:"oneof=market limit"`
	AllowNakedSells  bool      `json:"allow_naked_sells" toml:"allow_naked_sells"`
	Leverage         float64   `json:"leverage" toml:"leverage" validate:"gt=0"`
}

// NotifierSetup selects broadcasters.
type NotifierSetup struct {
	Broadcasters []string `json:"broadcasters" toml:"broadcasters" validate:"dive,oneof=print_on_screen telegram whatsapp email push"`
	Debug        bool     `json:"debug" toml:"debug"`
	DebugEvery   int      `json:"debug_every" toml:"debug_every" validate:"gte=0"`
}

// BacktestingSetup configures the replay.
type BacktestingSetup struct {
	PriceMetrics   string  `json:"price_metrics" toml:"price_metrics" validate:"omitempty,oneof=o h l c oc2 hl2 hlc3 ohlc4"`
	FeeRateDecimal float64 `json:"fee_rate_decimal" toml:"fee_rate_decimal" validate:"gte=0,lt=1"`
	Since          string  `json:"since" toml:"since"`
	Until          string  `json:"until" toml:"until"`
}
