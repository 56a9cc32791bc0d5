// Package filesystem provides the cache's publish discipline: finished
// renditions are written to a private tmp path and made visible by a
// single atomic rename, with retry logic for transient NFS errors.
package filesystem
