package etc

import (
	"fmt"
	"time"
)

// FormatMag renders an AB magnitude for display. Three decimals is finer
// than any solver tolerance the bridge uses.
func FormatMag(m float64) string {
	return fmt.Sprintf("%.3f AB mag", m)
}

// FormatSNR renders a signal-to-noise ratio for display.
func FormatSNR(snr float64) string {
	if snr >= 100 {
		return fmt.Sprintf("S/N %.0f", snr)
	}
	return fmt.Sprintf("S/N %.2f", snr)
}

// FormatExposures renders an exposure count with its unit.
func FormatExposures(n int) string {
	if n == 1 {
		return "1 exposure"
	}
	return fmt.Sprintf("%d exposures", n)
}

// FormatDuration renders an elapsed duration compactly: sub-second values
// in milliseconds, otherwise seconds or minutes with one decimal.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
