package etc

// Builtin returns the compiled-in instrument tables. The gateway uses these
// when no reference-data directory is configured; a populated directory
// replaces them entirely.
//
// The filter lists follow the imaging modes of the two instruments the
// bridge was written against. They are a convenience for local development;
// the engine remains the authority on what it will actually accept.
func Builtin() []Instrument {
	return []Instrument{
		{
			Name: "nircam",
			Filters: []string{
				"f070w", "f090w", "f115w", "f150w", "f200w",
				"f277w", "f356w", "f444w",
			},
			Defaults: ParamSet{
				Instrument:     "nircam",
				Filter:         "f115w",
				ApertureArcsec: 0.1,
				Background:     BackgroundMedium,
				Groups:         6,
				Exposures:      1,
				MagAB:          25.0,
			},
		},
		{
			Name: "wfi",
			Filters: []string{
				"f062", "f087", "f106", "f129", "f158", "f184", "f213",
			},
			Defaults: ParamSet{
				Instrument:     "wfi",
				Filter:         "f106",
				ApertureArcsec: 0.2,
				Background:     BackgroundMedium,
				Groups:         8,
				Exposures:      1,
				MagAB:          24.0,
			},
		},
	}
}
