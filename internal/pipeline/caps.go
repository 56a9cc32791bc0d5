package pipeline

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"media-cache/internal/logging"
)

// Codec identifies a target output family. One family exists today; a
// new family adds a constant here plus a dispatch arm in buildArgs.
type Codec string

// CodecProRes422 targets Apple ProRes 422 in a QuickTime container.
const CodecProRes422 Codec = "prores422"

// Valid reports whether c names a known codec family.
func (c Codec) Valid() bool {
	return c == CodecProRes422
}

// Dir returns the cache subdirectory for this family.
func (c Codec) Dir() string {
	return string(c)
}

// Caps describes what the host's ffmpeg build can do. It is resolved
// once at construction time, not per job, and may be replaced with a
// fixed value in tests.
type Caps struct {
	// HardwareProRes means a vendor hardware encoder (VideoToolbox)
	// is present and the hardware branch may be attempted.
	HardwareProRes bool

	// SoftwareProRes means the portable prores_ks encoder is present.
	// Without it the portable branch cannot be built.
	SoftwareProRes bool

	// AAC means the aac audio encoder is present.
	AAC bool
}

const capsProbeTimeout = 3 * time.Second

// DetectCaps probes the ffmpeg binary's encoder list. A missing or
// broken ffmpeg yields zero caps; planning then fails naming the
// missing stage rather than at detection time.
func DetectCaps(ctx context.Context, ffmpegBinary string) Caps {
	ctx, cancel := context.WithTimeout(ctx, capsProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegBinary, "-hide_banner", "-encoders")
	out, err := cmd.Output()
	if err != nil {
		logging.Warn("encoder capability probe failed: %v", err)
		return Caps{}
	}

	caps := parseEncoderList(string(out))
	logging.Info("ffmpeg capabilities: hardware_prores=%v software_prores=%v aac=%v",
		caps.HardwareProRes, caps.SoftwareProRes, caps.AAC)
	return caps
}

// parseEncoderList extracts capabilities from `ffmpeg -encoders` output.
// Exported logic kept separate from DetectCaps for testing without a
// real ffmpeg binary.
func parseEncoderList(out string) Caps {
	var caps Caps
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Lines look like " V....D prores_ks  Apple ProRes (iCodec Pro)".
		switch fields[1] {
		case "prores_videotoolbox":
			caps.HardwareProRes = true
		case "prores_ks":
			caps.SoftwareProRes = true
		case "aac":
			caps.AAC = true
		}
	}
	return caps
}
