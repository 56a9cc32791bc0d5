package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the optimal number of concurrently running transcode
// pipelines. It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (software encoding)
//   - 2.0 for I/O-bound tasks (remux-only pipelines)
//
// The limit parameter caps the result to prevent resource exhaustion.
// Use 0 for no limit.
//
// Can be overridden with the MEDIA_CACHE_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	// Check for manual override first
	if override := os.Getenv("MEDIA_CACHE_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	// GOMAXPROCS is automatically set to container CPU limit in Go 1.19+
	available := runtime.GOMAXPROCS(0)

	count := int(float64(available) * multiplier)

	if count < 1 {
		count = 1
	}
	if limit > 0 && count > limit {
		count = limit
	}

	return count
}

// ForCPU returns the pipeline count for CPU-bound encoding (1 per CPU).
// The limit parameter caps the maximum number of concurrent pipelines.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}
