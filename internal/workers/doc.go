/*
Package workers determines how many transcode pipelines may run at once
in containerized environments.

While Go 1.19+ automatically sets GOMAXPROCS based on container CPU
limits, runtime.NumCPU() still returns the host machine's CPU count.
This package uses GOMAXPROCS so the cache's concurrency bound respects
cgroup constraints instead of the host core count.

Basic usage:

	// Software ProRes encoding is CPU-bound: 1 pipeline per CPU, max 8.
	limit := workers.ForCPU(8)

All functions respect the MEDIA_CACHE_WORKERS environment variable,
allowing operators to override the automatic calculation.
*/
package workers
