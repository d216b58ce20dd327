package confidence

import "time"

// Recency decay breakpoints. Fresh memories hold a high score for a
// day, fall steeply over the first week, then fade to zero over the
// following month.
const (
	recencyFreshScore = 0.95
	recencyWeekScore  = 0.30

	recencyFreshWindow = 24 * time.Hour
	recencyWeekWindow  = 7 * 24 * time.Hour
	recencyFadeWindow  = 30 * 24 * time.Hour
)

// RecencyScore maps a memory's age to a [0,1] recency factor. The
// function is monotonically non-increasing in age by construction:
// each piece is non-increasing and the pieces meet at their
// breakpoints. Negative ages (clock skew) score as fresh.
func RecencyScore(age time.Duration) float64 {
	if age < recencyFreshWindow {
		return recencyFreshScore
	}
	if age < recencyWeekWindow {
		// Linear from 0.95 at one day down to 0.30 at seven days.
		span := float64(recencyWeekWindow - recencyFreshWindow)
		progress := float64(age-recencyFreshWindow) / span
		return recencyFreshScore - progress*(recencyFreshScore-recencyWeekScore)
	}
	if age < recencyWeekWindow+recencyFadeWindow {
		// Linear from 0.30 at seven days down to 0.0 thirty days later.
		progress := float64(age-recencyWeekWindow) / float64(recencyFadeWindow)
		return recencyWeekScore * (1 - progress)
	}
	return 0
}
