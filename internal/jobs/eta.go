package jobs

import "time"

// etaSeconds estimates remaining time from observed throughput:
// elapsed / progress x (100 - progress). Returns nil until progress is
// positive, since no rate can be observed yet.
func etaSeconds(elapsed time.Duration, progress float64) *float64 {
	if progress <= 0 || elapsed <= 0 {
		return nil
	}
	if progress >= 100 {
		zero := 0.0
		return &zero
	}
	remaining := elapsed.Seconds() / progress * (100 - progress)
	return &remaining
}
