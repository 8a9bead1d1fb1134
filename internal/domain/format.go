package domain

import (
	"fmt"
	"math"
)

// FormatDuration renders seconds as a travel time label such as
// "12 mins" or "1 hour 5 mins". Partial minutes round up.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	mins := int(math.Ceil(float64(seconds) / 60))
	if mins < 1 {
		mins = 1
	}

	hours := mins / 60
	mins = mins % 60

	switch {
	case hours == 0:
		return plural(mins, "min")
	case mins == 0:
		return plural(hours, "hour")
	default:
		return plural(hours, "hour") + " " + plural(mins, "min")
	}
}

// FormatDistance renders meters as "850 m" or "1.2 km".
func FormatDistance(meters int) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", meters)
	}
	return fmt.Sprintf("%.1f km", float64(meters)/1000)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
