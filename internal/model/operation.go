package model

// Mode selects how an Operation trades.
type Mode string

const (
	ModeReal        Mode = "real"
	ModeTest        Mode = "test"
	ModeBacktesting Mode = "backtesting"
)

// Monitor is the per-ticker agent of an Operation.
type Monitor struct {
	ID          string    `json:"id"`
	OperationID string    `json:"operation_id"`
	Ticker      Ticker    `json:"ticker"`
	IsMaster    bool      `json:"is_master"`
	IsActive    bool      `json:"is_active"`
	Position    Position  `json:"position"`
	LastCheck   LastCheck `json:"last_check"`
	TradingLog  []Order   `json:"trading_log,omitempty"`
}

// Operation owns its monitors. Wallet is authoritative only in backtesting and test modes.
type Operation struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Mode      Mode               `json:"mode"`
	Broker    string             `json:"broker"`
	Wallet    map[string]float64 `json:"wallet"`
	Setup     OperationalSetup   `json:"setup"`
	Monitors  []*Monitor         `json:"monitors"`
	IsRunning bool               `json:"is_running"`
}

// Master returns the master monitor, or nil.
func (op *Operation) Master() *Monitor {
	for _, m := range op.Monitors {
		if m.IsMaster {
			return m
		}
	}
	return nil
}

// ActiveMonitors returns the monitors to analyze this tick.
func (op *Operation) ActiveMonitors() []*Monitor {
	out := make([]*Monitor, 0, len(op.Monitors))
	for _, m := range op.Monitors {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out
}

// MonitorBySymbol finds a monitor by ticker symbol.
func (op *Operation) MonitorBySymbol(symbol string) *Monitor {
	for _, m := range op.Monitors {
		if m.Ticker.Symbol == symbol {
			return m
		}
	}
	return nil
}
