package solar

import (
	"fmt"
	"time"

	"github.com/homefuse/homefuse/pkg/types"
)

// DailyItem is one per-day record from the station history endpoint. Values
// are kWh totals for that day.
type DailyItem struct {
	Year            int     `json:"year"`
	Month           int     `json:"month"`
	Day             int     `json:"day"`
	GenerationValue float64 `json:"generationValue"`
	UseValue        float64 `json:"useValue"`
	GridValue       float64 `json:"gridValue"`
	ChargeValue     float64 `json:"chargeValue"`
}

// HourlyItem is one sub-day sample from the station history endpoint. The
// power channels are nullable on the wire; a null sample converts to 0.
type HourlyItem struct {
	DateTime        int64    `json:"dateTime"`
	GenerationPower *float64 `json:"generationPower"`
	BatterySOC      *float64 `json:"batterySoc"`
	UsePower        *float64 `json:"usePower"`
}

// ConvertDaily reshapes per-day records into the daily chart series in
// vendor-supplied order. Self-consumed energy is what was used directly plus
// what went into the battery; exported is what went to the grid.
func ConvertDaily(items []DailyItem) types.DailySolarSeries {
	s := types.DailySolarSeries{
		Labels:         make([]string, 0, len(items)),
		Values:         make([]float64, 0, len(items)),
		SelfConsumed:   make([]float64, 0, len(items)),
		ExportedToGrid: make([]float64, 0, len(items)),
	}
	for _, item := range items {
		s.Labels = append(s.Labels, fmt.Sprintf("%04d-%02d-%02d", item.Year, item.Month, item.Day))
		s.Values = append(s.Values, item.GenerationValue)
		s.SelfConsumed = append(s.SelfConsumed, item.UseValue+item.ChargeValue)
		s.ExportedToGrid = append(s.ExportedToGrid, item.GridValue)
	}
	return s
}

// ConvertHourly reshapes sub-day samples into the single-channel series,
// labeling each sample with its local wall-clock time.
func ConvertHourly(items []HourlyItem, loc *time.Location) types.SolarSeries {
	s := types.SolarSeries{
		Labels: make([]string, 0, len(items)),
		Values: make([]float64, 0, len(items)),
	}
	for _, item := range items {
		s.Labels = append(s.Labels, time.Unix(item.DateTime, 0).In(loc).Format("15:04"))
		s.Values = append(s.Values, deref(item.GenerationPower))
	}
	return s
}

// ConvertExtendedHourly is ConvertHourly with the battery state-of-charge and
// load-power channels alongside generation.
func ConvertExtendedHourly(items []HourlyItem, loc *time.Location) types.ExtendedSolarSeries {
	s := types.ExtendedSolarSeries{
		Labels:     make([]string, 0, len(items)),
		Values:     make([]float64, 0, len(items)),
		BatterySOC: make([]float64, 0, len(items)),
		UsePower:   make([]float64, 0, len(items)),
	}
	for _, item := range items {
		s.Labels = append(s.Labels, time.Unix(item.DateTime, 0).In(loc).Format("15:04"))
		s.Values = append(s.Values, deref(item.GenerationPower))
		s.BatterySOC = append(s.BatterySOC, deref(item.BatterySOC))
		s.UsePower = append(s.UsePower, deref(item.UsePower))
	}
	return s
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
