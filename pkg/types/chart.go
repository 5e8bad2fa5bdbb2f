package types

// SolarSeries is the legacy single-channel chart shape used by the "today"
// endpoint: one label per point, values parallel to labels.
type SolarSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// DailySolarSeries is the multi-day chart shape: per-day generation,
// self-consumed and grid-exported energy. All channels share the label
// length; an empty series has zero-length (not null) channels.
type DailySolarSeries struct {
	Labels         []string  `json:"labels"`
	Values         []float64 `json:"values"`
	SelfConsumed   []float64 `json:"selfConsumed"`
	ExportedToGrid []float64 `json:"exportedToGrid"`
}

// ExtendedSolarSeries is the sub-day chart shape: instantaneous generation
// power plus battery state-of-charge and load power per sample.
type ExtendedSolarSeries struct {
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
	BatterySOC []float64 `json:"batterySoc"`
	UsePower   []float64 `json:"usePower"`
}
