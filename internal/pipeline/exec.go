package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/probe"
)

// ErrCanceled is returned when a transcode stops because the job's
// cancel flag was set. It is a terminal outcome, not a failure.
var ErrCanceled = errors.New("transcode canceled")

// pollInterval is how often the execution loop re-checks the cancel
// flag and recomputes progress.
const pollInterval = 100 * time.Millisecond

// stderrTailLimit bounds how much diagnostic text survives into a
// Failed message.
const stderrTailLimit = 2048

// Request describes one transcode the engine should run. Cancel is the
// job's shared flag; the engine only reads it. Progress receives the
// current completion fraction in [0,1] on every poll tick.
type Request struct {
	SourcePath string
	CodecHint  string
	Codec      Codec
	TmpPath    string
	Cancel     *atomic.Bool
	Progress   func(float64)
}

// Engine builds and runs transcode pipelines with a fixed capability
// set. The zero value is not usable; construct with NewEngine.
type Engine struct {
	ffmpeg string
	prober *probe.Prober
	caps   Caps
}

// NewEngine returns an engine using the given ffmpeg binary and
// pre-resolved capabilities. Pass DetectCaps output for real use or a
// fixed Caps value in tests.
func NewEngine(ffmpegBinary string, prober *probe.Prober, caps Caps) *Engine {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Engine{ffmpeg: ffmpegBinary, prober: prober, caps: caps}
}

// Transcode probes the source, builds the plan, and drives ffmpeg to a
// terminal outcome. It returns nil on success, ErrCanceled when the
// cancel flag stopped the run, and a diagnostic error otherwise. The
// tmp file may be left behind on failure; the caller owns cleanup.
func (e *Engine) Transcode(ctx context.Context, req Request) error {
	if req.Cancel != nil && req.Cancel.Load() {
		return ErrCanceled
	}

	if _, err := exec.LookPath(e.ffmpeg); err != nil {
		return fmt.Errorf("build pipeline: ffmpeg binary %q: %w", e.ffmpeg, err)
	}

	res, err := e.prober.Probe(ctx, req.SourcePath)
	if err != nil {
		return fmt.Errorf("probe source: %w", err)
	}

	plan, err := buildPlan(e.caps, res, req.Codec, req.SourcePath, req.CodecHint, req.TmpPath)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	logging.Debug("transcode plan for %s: branch=%s duration=%.2fs", req.SourcePath, plan.Branch, plan.Duration)
	return e.run(plan, req)
}

// run executes one planned ffmpeg invocation, polling the cancel flag
// and the progress feed every pollInterval.
func (e *Engine) run(plan *Plan, req Request) error {
	cmd := exec.Command(e.ffmpeg, plan.Args...)
	setupProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("build pipeline: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	// The progress feed is consumed off the worker loop; only the
	// atomic position crosses back.
	var positionUS atomic.Int64
	go consumeProgress(stdout, &positionUS)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("pipeline (%s branch): %w: %s", plan.Branch, err, tail(stderr.String()))
			}
			if req.Progress != nil {
				req.Progress(1.0)
			}
			return nil
		case <-ticker.C:
			if req.Cancel != nil && req.Cancel.Load() {
				killProcessGroup(cmd)
				<-done
				return ErrCanceled
			}
			if req.Progress != nil && plan.Duration > 0 {
				pct := float64(positionUS.Load()) / 1e6 / plan.Duration
				if pct < 0 {
					pct = 0
				}
				if pct > 1 {
					pct = 1
				}
				req.Progress(pct)
			}
		}
	}
}

// consumeProgress parses ffmpeg's -progress key=value feed, publishing
// the latest output position in microseconds.
func consumeProgress(r io.Reader, positionUS *atomic.Int64) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if us, ok := parseProgressLine(scanner.Text()); ok {
			positionUS.Store(us)
		}
	}
}

// parseProgressLine extracts the position from an out_time_us (or the
// equivalent out_time_ms, which ffmpeg also reports in microseconds)
// progress line.
func parseProgressLine(line string) (int64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return 0, false
	}
	if key != "out_time_us" && key != "out_time_ms" {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTailLimit {
		return s
	}
	return s[len(s)-stderrTailLimit:]
}
