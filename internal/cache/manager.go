package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"media-cache/internal/index"
	"media-cache/internal/logging"
	"media-cache/internal/metrics"
	"media-cache/internal/pipeline"
)

// Transcoder runs one planned pipeline to a terminal outcome. It is
// satisfied by *pipeline.Engine; tests inject fakes.
type Transcoder interface {
	Transcode(ctx context.Context, req pipeline.Request) error
}

// Manifest persists finished renditions across restarts. It is
// satisfied by *index.Store; nil disables persistence.
type Manifest interface {
	Record(ctx context.Context, e index.Entry) error
	Remove(ctx context.Context, dedupKey string) error
	Entries(ctx context.Context) ([]index.Entry, error)
	Clear(ctx context.Context) (int64, error)
}

// Config configures a Manager.
type Config struct {
	// Root is the cache directory. Created at construction; per-codec
	// subdirectories are created lazily.
	Root string

	// MaxConcurrency bounds how many pipelines actively run at once,
	// independent of how many jobs are queued. Must be positive.
	MaxConcurrency int

	// Transcoder executes pipelines. Required.
	Transcoder Transcoder

	// Manifest persists finished renditions. Optional.
	Manifest Manifest
}

// state is the shared job table. All fields are guarded by its mutex;
// critical sections are O(1) map operations only, never I/O.
type state struct {
	mu     sync.Mutex
	nextID JobID
	jobs   map[JobID]*jobRecord
	dedup  map[string]JobID
}

// Manager is the job registry for optimized media renditions. All
// methods are safe for concurrent use and none of them block on
// transcoding work.
type Manager struct {
	inner      *state
	bus        *bus
	root       string
	permits    *semaphore.Weighted
	transcoder Transcoder
	manifest   Manifest
}

// New creates the cache root and returns a ready Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, errors.New("cache: max concurrency must be positive")
	}
	if cfg.Transcoder == nil {
		return nil, errors.New("cache: transcoder is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root %q: %w", cfg.Root, err)
	}

	m := &Manager{
		inner: &state{
			nextID: 1,
			jobs:   make(map[JobID]*jobRecord),
			dedup:  make(map[string]JobID),
		},
		bus:        newBus(),
		root:       cfg.Root,
		permits:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		transcoder: cfg.Transcoder,
		manifest:   cfg.Manifest,
	}

	if m.manifest != nil {
		m.loadManifest()
	}

	logging.Info("cache manager initialized: root=%s max_concurrency=%d", cfg.Root, cfg.MaxConcurrency)
	return m, nil
}

// loadManifest seeds the registry with finished renditions recorded by
// previous runs, dropping rows whose output file has vanished.
func (m *Manager) loadManifest() {
	ctx := context.Background()
	entries, err := m.manifest.Entries(ctx)
	if err != nil {
		logging.Warn("failed to load cache manifest: %v", err)
		return
	}

	seeded := 0
	for _, e := range entries {
		if _, err := os.Stat(e.OutputPath); err != nil {
			logging.Debug("manifest entry %s lost its output file, dropping", e.DedupKey)
			if err := m.manifest.Remove(ctx, e.DedupKey); err != nil {
				logging.Warn("failed to drop stale manifest entry: %v", err)
			}
			continue
		}

		m.inner.mu.Lock()
		id := m.inner.nextID
		m.inner.nextID++
		m.inner.jobs[id] = &jobRecord{
			spec: JobSpec{
				SourcePath:        e.SourcePath,
				ForceContainerMOV: true,
				PreferredCodec:    pipeline.Codec(e.Codec),
			},
			status:     JobStatus{State: StateCompleted, OutputPath: e.OutputPath},
			cancel:     &atomic.Bool{},
			outputPath: e.OutputPath,
			tmpPath:    e.OutputPath + ".tmp",
			dedupKey:   e.DedupKey,
		}
		m.inner.dedup[e.DedupKey] = id
		m.inner.mu.Unlock()
		seeded++
	}

	if seeded > 0 {
		logging.Info("seeded %d finished renditions from cache manifest", seeded)
	}
}

// preparedJob is the result of submission-time validation.
type preparedJob struct {
	spec       JobSpec
	outputPath string
	tmpPath    string
	dedupKey   string
}

// prepareJob canonicalizes the source, verifies readability, computes
// the deterministic cache paths, and creates the codec subdirectory.
func (m *Manager) prepareJob(spec JobSpec) (*preparedJob, error) {
	if !spec.PreferredCodec.Valid() {
		return nil, fmt.Errorf("unknown codec family %q", spec.PreferredCodec)
	}

	canonical, err := canonicalSourcePath(spec.SourcePath)
	if err != nil {
		return nil, err
	}
	spec.SourcePath = canonical

	f, err := os.Open(canonical)
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", canonical, err)
	}
	if err := f.Close(); err != nil {
		logging.Warn("failed to close source after readability check: %v", err)
	}

	outputPath, tmpPath, dedupKey, err := computeCachePaths(m.root, canonical, spec.PreferredCodec)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create codec directory: %w", err)
	}

	if !spec.ForceContainerMOV {
		logging.Debug("force container flag disabled; mov is used regardless for deterministic outputs")
	}

	return &preparedJob{
		spec:       spec,
		outputPath: outputPath,
		tmpPath:    tmpPath,
		dedupKey:   dedupKey,
	}, nil
}

// Submit registers a job and returns its id. Equivalent in-flight work
// is coalesced; an existing finished rendition is answered immediately
// with a re-emitted Completed event. A source that cannot be read
// yields a synthetic Failed job, so the caller always gets an id and an
// event, never a call-site error. Submit never blocks on transcoding.
func (m *Manager) Submit(spec JobSpec) JobID {
	metrics.JobsSubmitted.Inc()

	prepared, err := m.prepareJob(spec)
	if err != nil {
		logging.Error("failed to prepare cache job for %s: %v", spec.SourcePath, err)
		return m.recordFailedSubmission(err.Error())
	}

	st := m.inner
	st.mu.Lock()
	// Critical sections stay O(1) map work; the cache-hit stat runs
	// unlocked, then the dedup entry is re-checked before eviction.
	for {
		existingID, ok := st.dedup[prepared.dedupKey]
		if !ok {
			break
		}
		record, ok := st.jobs[existingID]
		if !ok {
			delete(st.dedup, prepared.dedupKey)
			break
		}
		switch record.status.State {
		case StateQueued, StateInProgress:
			st.mu.Unlock()
			logging.Debug("coalesced submission onto job %d", existingID)
			metrics.CoalescedSubmissions.Inc()
			return existingID
		case StateCompleted:
			status := record.status
			outputPath := record.outputPath
			st.mu.Unlock()
			if _, err := os.Stat(outputPath); err == nil {
				logging.Info("cache hit: job=%d codec=%s source=%s output=%s",
					existingID, spec.PreferredCodec, prepared.spec.SourcePath, status.OutputPath)
				metrics.CacheHits.Inc()
				// Re-emit for late joiners.
				m.bus.publish(Event{JobID: existingID, Status: status})
				return existingID
			}
			// Output vanished. A concurrent submitter may have already
			// replaced the entry while the stat ran, so evict only if
			// it still points at this job, then re-evaluate.
			st.mu.Lock()
			if cur, ok := st.dedup[prepared.dedupKey]; ok && cur == existingID {
				delete(st.dedup, prepared.dedupKey)
			}
			continue
		default:
			// Failed or canceled earlier; start fresh.
			delete(st.dedup, prepared.dedupKey)
		}
		break
	}

	id := st.nextID
	st.nextID++

	cancel := &atomic.Bool{}
	st.jobs[id] = &jobRecord{
		spec:       prepared.spec,
		status:     JobStatus{State: StateQueued},
		cancel:     cancel,
		outputPath: prepared.outputPath,
		tmpPath:    prepared.tmpPath,
		dedupKey:   prepared.dedupKey,
	}
	st.dedup[prepared.dedupKey] = id
	st.mu.Unlock()

	logging.Info("cache job queued: job=%d codec=%s source=%s output=%s",
		id, prepared.spec.PreferredCodec, prepared.spec.SourcePath, prepared.outputPath)
	m.bus.publish(Event{JobID: id, Status: JobStatus{State: StateQueued}})

	go m.runWorker(id, prepared.spec, prepared.outputPath, prepared.tmpPath, cancel)

	return id
}

// recordFailedSubmission allocates a terminal job for a submission that
// never got far enough to have paths or a dedup entry.
func (m *Manager) recordFailedSubmission(message string) JobID {
	st := m.inner
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.jobs[id] = &jobRecord{
		status: JobStatus{State: StateFailed, Message: message},
		cancel: &atomic.Bool{},
	}
	st.mu.Unlock()

	logging.Warn("cache job failed at submission: job=%d error=%s", id, message)
	metrics.JobsFinished.WithLabelValues(string(StateFailed)).Inc()
	m.bus.publish(Event{JobID: id, Status: JobStatus{State: StateFailed, Message: message}})
	return id
}

// Cancel requests cooperative cancellation. It never blocks; the
// effect is observed asynchronously via events. Canceling an unknown
// or already terminal job is a no-op.
func (m *Manager) Cancel(id JobID) {
	st := m.inner
	st.mu.Lock()
	record, ok := st.jobs[id]
	st.mu.Unlock()
	if ok {
		record.cancel.Store(true)
		logging.Debug("cancel requested for job %d", id)
	}
}

// Status returns a point-in-time snapshot of the job.
func (m *Manager) Status(id JobID) (JobStatus, bool) {
	st := m.inner
	st.mu.Lock()
	defer st.mu.Unlock()
	record, ok := st.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return record.status, true
}

// CachedOutputPath recomputes the deterministic output path for a
// source and returns it only when the finished file exists. It lets
// callers opportunistically reuse a rendition without submitting.
func (m *Manager) CachedOutputPath(source string, codec pipeline.Codec) (string, bool) {
	canonical, err := canonicalSourcePath(source)
	if err != nil {
		return "", false
	}
	outputPath, _, _, err := computeCachePaths(m.root, canonical, codec)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", false
	}
	return outputPath, true
}

// Subscribe registers a new event queue. Transitions for a given job
// arrive in order. The returned func unsubscribes and closes the
// channel.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.subscribe()
}

// ClearCache removes every finished rendition and its manifest row,
// returning the number of bytes freed. In-flight tmp files and active
// jobs are left alone; their dedup entries survive, so running work is
// unaffected.
func (m *Manager) ClearCache(ctx context.Context) (int64, error) {
	if m.manifest != nil {
		return m.clearFromManifest(ctx)
	}
	return m.clearFromDisk()
}

func (m *Manager) clearFromManifest(ctx context.Context) (int64, error) {
	entries, err := m.manifest.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list manifest entries: %w", err)
	}

	var freed int64
	for _, e := range entries {
		fi, err := os.Stat(e.OutputPath)
		if err == nil {
			if err := os.Remove(e.OutputPath); err != nil {
				logging.Warn("failed to remove rendition %s: %v", e.OutputPath, err)
				continue
			}
			freed += fi.Size()
		}
		if err := m.manifest.Remove(ctx, e.DedupKey); err != nil {
			logging.Warn("failed to remove manifest entry %s: %v", e.DedupKey, err)
		}
	}

	logging.Info("cleared rendition cache: freed %d bytes", freed)
	return freed, nil
}

// clearFromDisk walks the codec subdirectories directly when no
// manifest is configured. Only finished .mov files are touched.
func (m *Manager) clearFromDisk() (int64, error) {
	var freed int64

	dirs, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache root: %w", err)
	}

	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		codecDir := filepath.Join(m.root, dir.Name())
		files, err := os.ReadDir(codecDir)
		if err != nil {
			logging.Warn("failed to read codec directory %s: %v", codecDir, err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".mov") {
				continue
			}
			path := filepath.Join(codecDir, f.Name())
			info, err := f.Info()
			if err != nil {
				logging.Warn("failed to stat %s: %v", path, err)
				continue
			}
			if err := os.Remove(path); err != nil {
				logging.Warn("failed to remove rendition %s: %v", path, err)
				continue
			}
			freed += info.Size()
		}
	}

	logging.Info("cleared rendition cache: freed %d bytes", freed)
	return freed, nil
}
