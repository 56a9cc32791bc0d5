package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/workers"
)

// Default worker sizing: one pipeline per four logical CPUs, capped
// low because each ffmpeg process is itself multithreaded.
const maxDefaultJobs = 4

// Config holds all application configuration.
type Config struct {
	// CacheRoot is the directory holding finished renditions, one
	// subdirectory per codec family.
	CacheRoot string

	// MaxJobs bounds concurrently running pipelines.
	MaxJobs int

	// FFmpegPath and FFprobePath name the binaries to invoke. Bare
	// names are resolved through PATH at execution time.
	FFmpegPath  string
	FFprobePath string

	// HardwareAccel selects encoder probing: "auto" probes for a
	// hardware encoder, "off" forces the portable branch everywhere.
	HardwareAccel string

	// ManifestPath locates the SQLite manifest. Empty disables
	// persistence, so the cache registry is rebuilt per process.
	ManifestPath string

	// MetricsAddr is the listen address for the metrics and health
	// endpoints. Empty disables the HTTP server.
	MetricsAddr string

	// ProbeTimeout bounds each ffprobe invocation.
	ProbeTimeout time.Duration
}

// LoadConfig loads and validates configuration from environment
// variables.
func LoadConfig() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cacheRoot := getEnv("MEDIA_CACHE_ROOT", "/cache")
	maxJobs := getEnvInt("MEDIA_CACHE_MAX_JOBS", workers.ForCPU(maxDefaultJobs))
	ffmpegPath := getEnv("MEDIA_CACHE_FFMPEG", "ffmpeg")
	ffprobePath := getEnv("MEDIA_CACHE_FFPROBE", "ffprobe")
	hwAccel := getEnv("MEDIA_CACHE_HWACCEL", "auto")
	manifest := getEnv("MEDIA_CACHE_MANIFEST", "")
	metricsAddr := getEnv("MEDIA_CACHE_METRICS_ADDR", "")
	probeTimeoutStr := getEnv("MEDIA_CACHE_PROBE_TIMEOUT", "3s")

	logging.Info("  MEDIA_CACHE_ROOT:          %s", cacheRoot)
	logging.Info("  MEDIA_CACHE_MAX_JOBS:      %d", maxJobs)
	logging.Info("  MEDIA_CACHE_FFMPEG:        %s", ffmpegPath)
	logging.Info("  MEDIA_CACHE_FFPROBE:       %s", ffprobePath)
	logging.Info("  MEDIA_CACHE_HWACCEL:       %s", hwAccel)
	logging.Info("  MEDIA_CACHE_MANIFEST:      %s", displayOrNone(manifest))
	logging.Info("  MEDIA_CACHE_METRICS_ADDR:  %s", displayOrNone(metricsAddr))
	logging.Info("  MEDIA_CACHE_PROBE_TIMEOUT: %s", probeTimeoutStr)
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())

	if maxJobs < 1 {
		logging.Warn("  MEDIA_CACHE_MAX_JOBS below 1, using 1")
		maxJobs = 1
	}

	switch hwAccel {
	case "auto", "off":
	default:
		logging.Warn("  Invalid MEDIA_CACHE_HWACCEL %q, using auto", hwAccel)
		hwAccel = "auto"
	}

	probeTimeout, err := time.ParseDuration(probeTimeoutStr)
	if err != nil || probeTimeout <= 0 {
		logging.Warn("  Invalid MEDIA_CACHE_PROBE_TIMEOUT, using default: 3s")
		probeTimeout = 3 * time.Second
	}

	cacheRoot, err = filepath.Abs(cacheRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root path: %w", err)
	}
	if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
		return nil, fmt.Errorf("cache root is unusable: %w", err)
	}
	if err := testWriteAccess(cacheRoot); err != nil {
		return nil, fmt.Errorf("cache root is not writable: %w", err)
	}
	logging.Info("  Cache root (absolute): %s", cacheRoot)

	if manifest != "" {
		manifest, err = filepath.Abs(manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(manifest), 0o755); err != nil {
			return nil, fmt.Errorf("manifest directory is unusable: %w", err)
		}
	}

	return &Config{
		CacheRoot:     cacheRoot,
		MaxJobs:       maxJobs,
		FFmpegPath:    ffmpegPath,
		FFprobePath:   ffprobePath,
		HardwareAccel: hwAccel,
		ManifestPath:  manifest,
		MetricsAddr:   metricsAddr,
		ProbeTimeout:  probeTimeout,
	}, nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove test file %s: %v", testFile, err)
	}
	return nil
}

func displayOrNone(value string) string {
	if value == "" {
		return "(disabled)"
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
