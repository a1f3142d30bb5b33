// internal/drawing/score.go
//
// Popularity scoring.
//
// Context
// -------
// Every view, like, and unlike first decays the stored score by elapsed
// time, then adds that event's point delta.  The 0.8-per-day retention
// factor gives a popularity half-life of roughly 3.1 days, so recent
// engagement outranks raw cumulative counts without any background sweep
// or sliding-window bookkeeping.
//
// Decay uses the time elapsed since the *previous* scoring event, not since
// creation; last_score_time in the row records that instant.
package drawing

import (
	"math"
	"time"
)

// Event point deltas.
const (
	ViewDelta   = 50
	LikeDelta   = 500
	UnlikeDelta = -500
)

const (
	retentionPerDay = 0.8
	secondsPerDay   = 86400
)

// Decay returns score reduced by elapsed time: score * 0.8^(elapsed/86400s).
// Zero or negative elapsed time leaves the score untouched.
func Decay(score float64, last, now time.Time) float64 {
	elapsed := now.Sub(last).Seconds()
	if elapsed <= 0 {
		return score
	}
	return score * math.Pow(retentionPerDay, elapsed/secondsPerDay)
}
