package pipeline

import (
	"fmt"
	"strconv"

	"media-cache/internal/logging"
	"media-cache/internal/probe"
)

// Branch tags which pipeline variant a plan uses.
type Branch string

const (
	// BranchHardware uses the vendor hardware decode+encode path.
	BranchHardware Branch = "hardware"
	// BranchPortable uses the software decode+encode path.
	BranchPortable Branch = "portable"
)

// aacBitrate is the fixed audio bitrate; audio is always normalized to
// AAC regardless of branch.
const aacBitrate = "192k"

// proresProfileHQ is the software encoder quality profile.
const proresProfileHQ = "hq"

// Plan is one fully resolved transcode: the argument vector for a
// single ffmpeg invocation writing to the tmp path, plus the metadata
// the worker needs to report progress.
type Plan struct {
	Branch   Branch
	Args     []string
	Duration float64 // seconds, from the container probe; 0 if unknown
}

// buildPlan assembles the argument plan for one job. It dispatches on
// the codec family, routes the probed sub-streams, and picks the
// hardware or portable branch. Any missing required stage aborts here,
// before ffmpeg ever runs.
func buildPlan(caps Caps, res *probe.Result, codec Codec, sourcePath, codecHint, tmpPath string) (*Plan, error) {
	switch codec {
	case CodecProRes422:
		return buildProResPlan(caps, res, sourcePath, codecHint, tmpPath)
	default:
		return nil, fmt.Errorf("unsupported codec family %q", codec)
	}
}

func buildProResPlan(caps Caps, res *probe.Result, sourcePath, codecHint, tmpPath string) (*Plan, error) {
	videoIdx, audioIdx, err := routeStreams(res)
	if err != nil {
		return nil, err
	}
	if extras := res.AudioStreams(); len(extras) > 1 {
		logging.Debug("keeping audio stream %d, dropping %d additional audio streams", audioIdx, len(extras)-1)
	}

	if !caps.AAC {
		return nil, fmt.Errorf("build audio encoder: aac unavailable")
	}

	branch := BranchPortable
	if caps.HardwareProRes && !sourceIsProRes(codecHint, res) {
		branch = BranchHardware
	}
	if branch == BranchPortable && !caps.SoftwareProRes {
		return nil, fmt.Errorf("build video encoder: prores_ks unavailable")
	}

	args := make([]string, 0, 32)
	args = append(args,
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-progress", "pipe:1", "-nostats",
	)

	if branch == BranchHardware {
		args = append(args, "-hwaccel", "videotoolbox")
	}

	args = append(args, "-i", sourcePath)

	// Stream maps from routing.
	args = append(args, "-map", "0:"+strconv.Itoa(videoIdx))
	if audioIdx >= 0 {
		args = append(args, "-map", "0:"+strconv.Itoa(audioIdx))
	}

	// Video tail: convert -> encode.
	if branch == BranchHardware {
		args = append(args,
			"-c:v", "prores_videotoolbox",
			"-profile:v", "standard",
		)
	} else {
		args = append(args,
			"-c:v", "prores_ks",
			"-profile:v", proresProfileHQ,
			"-pix_fmt", "yuv422p10le",
		)
	}

	// Audio tail: always normalize to fixed-bitrate AAC.
	if audioIdx >= 0 {
		args = append(args, "-c:a", "aac", "-b:a", aacBitrate)
	} else {
		args = append(args, "-an")
	}

	// Mux: QuickTime with fast-start metadata placement, sink to tmp.
	args = append(args, "-movflags", "+faststart", "-f", "mov", tmpPath)

	return &Plan{
		Branch:   branch,
		Args:     args,
		Duration: res.Format.Duration,
	}, nil
}

// routeStreams walks the probed sub-streams in discovery order and
// links each to its branch: the first non-cover video stream and the
// first audio stream. Linking is guarded by explicit per-branch flags
// so duplicate discovery of a stream kind cannot double-link a branch.
// Unknown kinds are logged and ignored. audioIdx is -1 when the source
// has no audio.
func routeStreams(res *probe.Result) (videoIdx, audioIdx int, err error) {
	videoIdx, audioIdx = -1, -1
	videoLinked, audioLinked := false, false

	for _, s := range res.Streams {
		switch s.Kind {
		case probe.KindVideo:
			if videoLinked {
				continue
			}
			if s.IsAttachedPic {
				logging.Debug("skipping attached picture stream %d", s.Index)
				continue
			}
			videoIdx = s.Index
			videoLinked = true
		case probe.KindAudio:
			if audioLinked {
				continue
			}
			audioIdx = s.Index
			audioLinked = true
		default:
			logging.Debug("ignoring %s stream %d (%s)", s.Kind, s.Index, s.Codec)
		}
	}

	if !videoLinked {
		return -1, -1, fmt.Errorf("route streams: no video stream in source")
	}
	return videoIdx, audioIdx, nil
}
