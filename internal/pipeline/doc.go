// Package pipeline plans and executes one transcode per cache job.
//
// A plan is an ffmpeg argument vector writing to the job's private tmp
// path. Planning dispatches on the target codec family, detects sources
// that are already in the target family, and selects a hardware-
// accelerated branch when the host's ffmpeg exposes one, falling back
// transparently to a portable software branch otherwise.
//
// Capability detection happens once at construction and is injectable,
// so both branches are testable on any host.
package pipeline
