package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

// RetryConfig configures retry behavior for publish operations.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS-backed cache
// directories.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isTransientError reports whether a rename failure is worth retrying:
// NFS stale handles and busy targets clear up on their own.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE || errno == syscall.EBUSY
	}

	return false
}

// Publish atomically renames tmpPath to finalPath. Readers either see
// the previous state or the whole finished file, never a partial write.
// Transient errors are retried with exponential backoff; any final
// failure is returned so the caller can downgrade the job outcome.
func Publish(tmpPath, finalPath string, config RetryConfig) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := os.Rename(tmpPath, finalPath)
		if err == nil {
			if attempt > 0 {
				logging.Info("publish succeeded on retry %d for %s", attempt, finalPath)
			}
			return nil
		}

		lastErr = err

		if !isTransientError(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			metrics.PublishRetries.Inc()
			logging.Debug("publish of %s hit transient error %v, retrying in %v (attempt %d/%d)",
				finalPath, err, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			// Exponential backoff with cap
			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("publish failed after %d retries for %s: %v", config.MaxRetries, finalPath, lastErr)
	return lastErr
}

// RemoveIfExists deletes path, treating a missing file as success.
// Used to clear stale tmp files before a run and to discard partial
// output after failure or cancellation.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
