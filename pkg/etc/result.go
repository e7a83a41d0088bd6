package etc

// Result is the engine's answer to one calculation. Beyond the scalar
// signal-to-noise ratio the payload is treated as opaque: Extra carries
// whatever per-component numbers the engine chose to include, and Warnings
// carries its validation notices (e.g. an extrapolated source spectrum)
// verbatim.
type Result struct {
	// SNR is the signal-to-noise ratio of the extracted source.
	SNR float64 `json:"snr"`

	// Warnings holds engine-issued notices, forwarded unmodified.
	Warnings []string `json:"warnings,omitempty"`

	// Extra holds engine-specific scalar outputs (extracted flux,
	// background counts, saturation fractions, ...). Keys are owned by
	// the engine.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// Instrument describes one instrument known to the bridge: its filter set
// and the defaults table merged under caller overrides.
type Instrument struct {
	// Name is the lower-case instrument identifier.
	Name string `json:"name" yaml:"instrument"`

	// Filters is the set of bandpass filters the instrument offers.
	Filters []string `json:"filters" yaml:"filters"`

	// Defaults is the parameter table used when a caller omits a value.
	Defaults ParamSet `json:"defaults" yaml:"defaults"`
}

// HasFilter reports whether name is in the instrument's filter set.
func (i Instrument) HasFilter(name string) bool {
	for _, f := range i.Filters {
		if f == name {
			return true
		}
	}
	return false
}
