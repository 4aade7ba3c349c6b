package tfbuilder

import "didibot/internal/model"

// FillGaps linearly interpolates every missing step-second bar between two
// existing neighbours. Every OHLCV field is interpolated independently.
// Input must be sorted by open_time; bars off the step grid are kept as is.
func FillGaps(ks []model.Kline, step int64) []model.Kline {
	if len(ks) < 2 || step <= 0 {
		return ks
	}
	out := make([]model.Kline, 0, len(ks))
	out = append(out, ks[0])
	for i := 1; i < len(ks); i++ {
		prev, next := ks[i-1], ks[i]
		span := next.OpenTime - prev.OpenTime
		for ts := prev.OpenTime + step; ts < next.OpenTime; ts += step {
			w := float64(ts-prev.OpenTime) / float64(span)
			out = append(out, model.Kline{
				OpenTime: ts,
				Open:     lerp(prev.Open, next.Open, w),
				High:     lerp(prev.High, next.High, w),
				Low:      lerp(prev.Low, next.Low, w),
				Close:    lerp(prev.Close, next.Close, w),
				Volume:   lerp(prev.Volume, next.Volume, w),
			})
		}
		out = append(out, next)
	}
	return out
}

// Interpolate returns the linear interpolation of the metric price of ks at ts.
// ks must be sorted; ts outside the range is clamped to the closest bar.
func Interpolate(ks []model.Kline, ts int64, price func(model.Kline) float64) (float64, bool) {
	if len(ks) == 0 {
		return 0, false
	}
	if ts <= ks[0].OpenTime {
		return price(ks[0]), true
	}
	for i := 1; i < len(ks); i++ {
		if ts <= ks[i].OpenTime {
			prev, next := ks[i-1], ks[i]
			w := float64(ts-prev.OpenTime) / float64(next.OpenTime-prev.OpenTime)
			return lerp(price(prev), price(next), w), true
		}
	}
	return price(ks[len(ks)-1]), true
}

func lerp(a, b, w float64) float64 { return a + (b-a)*w }
