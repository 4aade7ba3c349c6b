package broker

import "sort"

// Exchanges lists the broker names an Operation may reference. Backtesting
// replays the stored klines of the named exchange.
var Exchanges = map[string]bool{
	"binance": true,
}

// Known reports whether name is a registered exchange.
func Known(name string) bool { return Exchanges[name] }

// Names lists the registered exchanges.
func Names() []string {
	out := make([]string, 0, len(Exchanges))
	for n := range Exchanges {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SupportsTimeFrame reports whether tf is in TimeFrames.
func SupportsTimeFrame(tf string) bool {
	for _, t := range TimeFrames {
		if t == tf {
			return true
		}
	}
	return false
}
