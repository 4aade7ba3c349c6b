package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"didibot/internal/broker"
	"didibot/internal/classifier"
	"didibot/internal/clock"
	"didibot/internal/model"
	"didibot/internal/strategy"
)

// OperationFile is the TOML layout of an Operation definition.
type OperationFile struct {
	Name     string                 `toml:"name" validate:"required"`
	Mode     model.Mode             `toml:"mode" validate:"oneof=real test backtesting"`
	Broker   string                 `toml:"broker" validate:"required"`
	Wallet   map[string]float64     `toml:"wallet" validate:"dive,gte=0"`
	Monitors []MonitorFile          `toml:"monitors" validate:"min=1,dive"`
	Setup    model.OperationalSetup `toml:"setup"`
}

// MonitorFile is one [[monitors]] entry. IsActive defaults to true.
type MonitorFile struct {
	Symbol   string `toml:"symbol" validate:"required"`
	Base     string `toml:"base" validate:"required"`
	Quote    string `toml:"quote" validate:"required,nefield=Base"`
	IsMaster bool   `toml:"is_master"`
	IsActive *bool  `toml:"is_active"`
}

var validate = validator.New()

// LoadOperation reads and validates the Operation defined at path.
func LoadOperation(path string) (*model.Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read operation file: %w", err)
	}
	return ParseOperation(data)
}

// ParseOperation decodes a TOML Operation definition, applies defaults and
// validates it. Every failure wraps model.ErrValue.
func ParseOperation(data []byte) (*model.Operation, error) {
	var f OperationFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode operation: %v", model.ErrValue, err)
	}
	f.defaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f.Operation(), nil
}

func (f *OperationFile) defaults() {
	t := &f.Setup.Trading
	if t.Leverage == 0 {
		t.Leverage = 1
	}
	if t.DefaultOrderType == "" {
		t.DefaultOrderType = model.OrderMarket
	}
	if f.Setup.Classifier.Name == "" {
		f.Setup.Classifier.Name = classifier.DidiName
	}
	if f.Mode == model.ModeBacktesting && f.Setup.Backtesting.PriceMetrics == "" {
		f.Setup.Backtesting.PriceMetrics = "o"
	}
}

// Validate checks the struct tags, then the rules that span fields.
func (f *OperationFile) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s fails %q", model.ErrValue, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", model.ErrValue, err)
	}

	masters, symbols := 0, make(map[string]bool)
	for _, m := range f.Monitors {
		if m.IsMaster {
			masters++
		}
		if symbols[m.Symbol] {
			return fmt.Errorf("%w: monitor %s defined twice", model.ErrValue, m.Symbol)
		}
		symbols[m.Symbol] = true
	}
	if masters != 1 {
		return fmt.Errorf("%w: exactly one master monitor required, got %d", model.ErrValue, masters)
	}

	ns := f.Setup.Classifier.Setup.DidiIndex.NumberSamples
	for i := 1; i < len(ns); i++ {
		if ns[i] <= ns[i-1] {
			return fmt.Errorf("%w: didi_index.number_samples must be strictly ascending, got %v", model.ErrValue, ns)
		}
	}

	t := f.Setup.Trading
	if t.ScoreShort > t.ScoreLong {
		return fmt.Errorf("%w: score_that_triggers_short_side %g above score_that_triggers_long_side %g", model.ErrValue, t.ScoreShort, t.ScoreLong)
	}

	tf := f.Setup.Classifier.TimeFrame
	if _, err := clock.SecondsIn(tf); err != nil || !broker.SupportsTimeFrame(tf) {
		return fmt.Errorf("%w: unsupported time frame %q", model.ErrValue, tf)
	}
	if _, err := classifier.New(f.Setup.Classifier); err != nil {
		return err
	}
	if !broker.Known(f.Broker) {
		return fmt.Errorf("%w: unknown broker %q (known: %v)", model.ErrValue, f.Broker, broker.Names())
	}
	if f.Setup.Stoploss.IsOn {
		if _, err := strategy.NewStopLoss(f.Setup.Stoploss); err != nil {
			return err
		}
	}

	if f.Mode != model.ModeReal && len(f.Wallet) == 0 {
		return fmt.Errorf("%w: %s mode needs a wallet", model.ErrValue, f.Mode)
	}
	if f.Mode == model.ModeBacktesting {
		since, err := clock.ParseTimestamp(f.Setup.Backtesting.Since)
		if err != nil {
			return fmt.Errorf("%w: backtesting.since: %v", model.ErrValue, err)
		}
		until, err := clock.ParseTimestamp(f.Setup.Backtesting.Until)
		if err != nil {
			return fmt.Errorf("%w: backtesting.until: %v", model.ErrValue, err)
		}
		if since >= until {
			return fmt.Errorf("%w: backtesting.since must be before backtesting.until", model.ErrValue)
		}
	}
	return nil
}

// Operation builds the domain Operation with fresh ids and zeroed positions.
func (f *OperationFile) Operation() *model.Operation {
	op := &model.Operation{
		ID:     uuid.New().String(),
		Name:   f.Name,
		Mode:   f.Mode,
		Broker: f.Broker,
		Wallet: make(map[string]float64, len(f.Wallet)),
		Setup:  f.Setup,
	}
	for k, v := range f.Wallet {
		op.Wallet[k] = v
	}
	for _, m := range f.Monitors {
		active := m.IsActive == nil || *m.IsActive
		op.Monitors = append(op.Monitors, &model.Monitor{
			ID:          uuid.New().String(),
			OperationID: op.ID,
			Ticker:      model.Ticker{Symbol: m.Symbol, Base: m.Base, Quote: m.Quote},
			IsMaster:    m.IsMaster,
			IsActive:    active,
			Position:    model.ZeroedPosition(),
		})
	}
	return op
}
