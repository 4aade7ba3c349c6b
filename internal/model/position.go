package model

// Side is the exposure of a monitor on its ticker.
type Side string

const (
	SideZeroed Side = "zeroed"
	SideLong   Side = "long"
	SideShort  Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideZeroed || s == SideLong || s == SideShort
}

// Position is the current exposure of a monitor. It only changes through the order coordinator.
type Position struct {
	Side               Side    `json:"side" db:"side"`
	Size               float64 `json:"size" db:"size"`
	EnterPrice         float64 `json:"enter_price" db:"enter_price"`
	EnterTimestamp     int64   `json:"enter_timestamp" db:"enter_timestamp"`
	ExitReferencePrice float64 `json:"exit_reference_price" db:"exit_reference_price"`
	ByScore            float64 `json:"by_score" db:"by_score"`
}

// ZeroedPosition is the position of a freshly created monitor.
func ZeroedPosition() Position {
	return Position{Side: SideZeroed}
}

// LastCheck records when a monitor was last analyzed.
type LastCheck struct {
	ByClassifierAt int64 `json:"by_classifier_at" db:"by_classifier_at"`
	ByStoplossAt   int64 `json:"by_stoploss_at" db:"by_stoploss_at"`
}

// Portfolio is the balance of both assets of a ticker.
type Portfolio struct {
	Quote float64 `json:"quote"`
	Base  float64 `json:"base"`
}
