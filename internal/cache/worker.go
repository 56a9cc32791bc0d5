package cache

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"media-cache/internal/filesystem"
	"media-cache/internal/index"
	"media-cache/internal/logging"
	"media-cache/internal/metrics"
	"media-cache/internal/pipeline"
)

// progressStep is the minimum progress delta worth broadcasting.
const progressStep = 0.01

// runWorker drives one job from Queued to a terminal state. The
// concurrency permit is acquired here, after the goroutine is spawned,
// so Submit never blocks regardless of how many jobs are queued.
func (m *Manager) runWorker(id JobID, spec JobSpec, outputPath, tmpPath string, cancel *atomic.Bool) {
	if err := m.permits.Acquire(context.Background(), 1); err != nil {
		m.finalize(id, JobStatus{State: StateFailed, Message: "concurrency gate closed: " + err.Error()})
		return
	}
	defer m.permits.Release(1)

	if cancel.Load() {
		m.finalize(id, JobStatus{State: StateCanceled})
		return
	}

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	m.transition(id, JobStatus{State: StateInProgress, Progress: 0})

	// A stale partial from a crashed run would make the pipeline's
	// overwrite behavior ambiguous.
	if err := filesystem.RemoveIfExists(tmpPath); err != nil {
		logging.Warn("failed to clear stale partial %s: %v", tmpPath, err)
	}

	lastReported := 0.0
	err := m.transcoder.Transcode(context.Background(), pipeline.Request{
		SourcePath: spec.SourcePath,
		CodecHint:  spec.SourceCodec,
		Codec:      spec.PreferredCodec,
		TmpPath:    tmpPath,
		Cancel:     cancel,
		Progress: func(p float64) {
			if p-lastReported < progressStep && p < 1.0 {
				return
			}
			lastReported = p
			m.transition(id, JobStatus{State: StateInProgress, Progress: p})
		},
	})

	switch {
	case err == nil:
		m.finalize(id, JobStatus{State: StateCompleted, OutputPath: outputPath})
	case errors.Is(err, pipeline.ErrCanceled):
		m.finalize(id, JobStatus{State: StateCanceled})
	default:
		m.finalize(id, JobStatus{State: StateFailed, Message: err.Error()})
	}
}

// transition publishes a non-terminal update. It is dropped once a
// terminal outcome is claimed, which can happen when a cancel lands
// between a progress callback and the table lock.
func (m *Manager) transition(id JobID, status JobStatus) {
	st := m.inner
	st.mu.Lock()
	record, ok := st.jobs[id]
	if !ok || record.finalized || record.status.Terminal() {
		st.mu.Unlock()
		return
	}
	if status.State == StateInProgress && record.status.State == StateQueued {
		record.startedAt = time.Now()
	}
	record.status = status
	st.mu.Unlock()

	m.bus.publish(Event{JobID: id, Status: status})
}

// finalize applies exactly one terminal transition. The first caller
// claims the outcome by flipping the finalized flag; later attempts
// are ignored. Completed publishes the partial atomically; a failed
// publish downgrades the outcome to Failed. Failed and Canceled
// guarantee no partial survives. The terminal status is written once,
// after the filesystem work settles, so observers never see Completed
// before the final file is in place and a terminal status never
// changes again.
func (m *Manager) finalize(id JobID, status JobStatus) {
	st := m.inner
	st.mu.Lock()
	record, ok := st.jobs[id]
	if !ok || record.finalized || record.status.Terminal() {
		st.mu.Unlock()
		return
	}
	record.finalized = true
	startedAt := record.startedAt
	tmpPath := record.tmpPath
	outputPath := record.outputPath
	dedupKey := record.dedupKey
	spec := record.spec
	st.mu.Unlock()

	if status.State == StateCompleted {
		if err := filesystem.Publish(tmpPath, outputPath, filesystem.DefaultRetryConfig()); err != nil {
			logging.Error("failed to publish rendition for job %d: %v", id, err)
			if rmErr := filesystem.RemoveIfExists(tmpPath); rmErr != nil {
				logging.Warn("failed to remove partial %s: %v", tmpPath, rmErr)
			}
			status = JobStatus{State: StateFailed, Message: "publish rendition: " + err.Error()}
		}
	} else if tmpPath != "" {
		if err := filesystem.RemoveIfExists(tmpPath); err != nil {
			logging.Warn("failed to remove partial %s: %v", tmpPath, err)
		}
	}

	st.mu.Lock()
	record.status = status
	if status.State != StateCompleted && dedupKey != "" && st.dedup[dedupKey] == id {
		delete(st.dedup, dedupKey)
	}
	st.mu.Unlock()

	m.syncManifest(status, spec, dedupKey, outputPath)

	metrics.JobsFinished.WithLabelValues(string(status.State)).Inc()
	if !startedAt.IsZero() {
		metrics.JobDuration.WithLabelValues(string(status.State)).Observe(time.Since(startedAt).Seconds())
	}

	switch status.State {
	case StateCompleted:
		logging.Info("cache job completed: job=%d output=%s", id, status.OutputPath)
	case StateCanceled:
		logging.Info("cache job canceled: job=%d source=%s", id, spec.SourcePath)
	default:
		logging.Error("cache job failed: job=%d source=%s error=%s", id, spec.SourcePath, status.Message)
	}

	m.bus.publish(Event{JobID: id, Status: status})
}

// syncManifest records or clears the persistent row for a finished
// job. Manifest errors are logged, never escalated; the in-memory
// registry stays authoritative for this process.
func (m *Manager) syncManifest(status JobStatus, spec JobSpec, dedupKey, outputPath string) {
	if m.manifest == nil || dedupKey == "" {
		return
	}
	ctx := context.Background()

	if status.State == StateCompleted {
		var size int64
		if fi, err := os.Stat(outputPath); err == nil {
			size = fi.Size()
		}
		err := m.manifest.Record(ctx, index.Entry{
			DedupKey:   dedupKey,
			SourcePath: spec.SourcePath,
			Codec:      string(spec.PreferredCodec),
			OutputPath: outputPath,
			SizeBytes:  size,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			logging.Warn("failed to record rendition in manifest: %v", err)
		}
		return
	}

	if err := m.manifest.Remove(ctx, dedupKey); err != nil {
		logging.Warn("failed to remove manifest entry %s: %v", dedupKey, err)
	}
}
