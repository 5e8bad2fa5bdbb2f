package solar

import (
	"fmt"
	"math"

	"github.com/homefuse/homefuse/pkg/types"
)

// Synthetic returns the placeholder production curve served on the legacy
// "today" endpoint when the vendor is unreachable: one point per hour from
// 06:00 through 18:00, a sine curve peaking at 5 kW around noon with bounded
// jitter. rnd yields values in [0, 1).
func Synthetic(rnd func() float64) types.SolarSeries {
	s := types.SolarSeries{
		Labels: make([]string, 0, 13),
		Values: make([]float64, 0, 13),
	}
	for hour := 6; hour <= 18; hour++ {
		s.Labels = append(s.Labels, fmt.Sprintf("%02d:00", hour))
		base := math.Sin(float64(hour-6)*math.Pi/12) * 5
		jitter := rnd() - 0.5
		s.Values = append(s.Values, math.Max(0, base+jitter))
	}
	return s
}

// Empty is the fallback for the hourly endpoint: zero-length channels, never
// null fields.
func Empty() types.SolarSeries {
	return types.SolarSeries{Labels: []string{}, Values: []float64{}}
}

// EmptyDaily is the fallback for the 30-day endpoint.
func EmptyDaily() types.DailySolarSeries {
	return types.DailySolarSeries{
		Labels:         []string{},
		Values:         []float64{},
		SelfConsumed:   []float64{},
		ExportedToGrid: []float64{},
	}
}

// EmptyExtended is the fallback for the 24-hour endpoint.
func EmptyExtended() types.ExtendedSolarSeries {
	return types.ExtendedSolarSeries{
		Labels:     []string{},
		Values:     []float64{},
		BatterySOC: []float64{},
		UsePower:   []float64{},
	}
}
