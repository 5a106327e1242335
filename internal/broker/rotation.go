package broker

import "time"

// rotationDue computes the next rotation deadline for a secret created or
// rotated at from. Intervals advance by calendar months/years rather than
// fixed-day windows ("30d" is one calendar month, not 30*24h); consumers
// depend on calendar-aligned rotation dates, so this must not be changed to
// duration arithmetic. Unknown intervals fall back to three months.
func rotationDue(from time.Time, interval string) time.Time {
	switch interval {
	case "30d":
		return from.AddDate(0, 1, 0)
	case "90d":
		return from.AddDate(0, 3, 0)
	case "180d":
		return from.AddDate(0, 6, 0)
	case "365d":
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 3, 0)
	}
}
