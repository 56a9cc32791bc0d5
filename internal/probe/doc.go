// Package probe extracts container and stream metadata from media files.
//
// It makes a single ffprobe JSON call per file and converts the wire
// format into domain types used by pipeline planning and stream routing.
// ffprobe must be installed and available in the system PATH (or at the
// configured binary path).
package probe
