package indicator

import (
	"fmt"

	"didibot/internal/model"
)

// Didi holds the Didi Index columns. Middle is always zero.
type Didi struct {
	Fast   []float64
	Middle []float64
	Slow   []float64
}

// ValidateDidi checks that ns holds three strictly ascending positive sample counts.
func ValidateDidi(ns []int) error {
	if len(ns) != 3 {
		return fmt.Errorf("%w: didi index needs 3 sample counts, got %d", model.ErrValue, len(ns))
	}
	if ns[0] <= 0 || ns[0] >= ns[1] || ns[1] >= ns[2] {
		return fmt.Errorf("%w: didi index sample counts must be positive and strictly ascending, got %v", model.ErrValue, ns)
	}
	return nil
}

// DidiIndex normalizes the fast and slow averages against the middle one:
// fast = s1/s2 - 1, slow = s3/s2 - 1.
func DidiIndex(ks []model.Kline, ns []int, metric string) (Didi, error) {
	if err := ValidateDidi(ns); err != nil {
		return Didi{}, err
	}
	prices, err := Prices(ks, metric)
	if err != nil {
		return Didi{}, err
	}
	return didiFromPrices(prices, ns), nil
}

func didiFromPrices(prices []float64, ns []int) Didi {
	fast, mid, slow := SMA(prices, ns[0]), SMA(prices, ns[1]), SMA(prices, ns[2])
	d := Didi{
		Fast:   make([]float64, len(prices)),
		Middle: make([]float64, len(prices)),
		Slow:   make([]float64, len(prices)),
	}
	for i := range prices {
		d.Fast[i] = fast[i]/mid[i] - 1
		d.Slow[i] = slow[i]/mid[i] - 1
	}
	return d
}
