package capture

import "golang.org/x/time/rate"

// NewLimiter returns a limiter that caps replay throughput to bytesPerSec.
// The burst is 1 MiB so typical chunk sizes pass without splitting.
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
