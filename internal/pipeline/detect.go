package pipeline

import (
	"strings"

	"media-cache/internal/logging"
	"media-cache/internal/probe"
)

// proresTokens are the codec names and FourCCs that identify a ProRes
// bitstream across containers and metadata sources.
var proresTokens = []string{
	"prores", "apcn", "apcs", "apco", "apch",
	"ap4h", "ap4x", "ap4a", "ap4o", "ap4n", "ap4b", "ap4f",
}

func containsProResToken(value string) bool {
	lower := strings.ToLower(value)
	for _, token := range proresTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// sourceIsProRes reports whether the source is already ProRes. An
// explicit caller hint is trusted when it matches a known token;
// otherwise the probed stream codecs decide. Transcoding ProRes through
// the hardware decode+encode pairing is not reentrant on some hosts, so
// a positive result forces the portable branch.
func sourceIsProRes(hint string, res *probe.Result) bool {
	if hint != "" && containsProResToken(hint) {
		logging.Debug("source identified as ProRes via codec hint %q", hint)
		return true
	}

	if v := res.PrimaryVideo(); v != nil {
		if containsProResToken(v.Codec) || containsProResToken(v.Profile) {
			logging.Debug("source identified as ProRes via probed stream codec %q", v.Codec)
			return true
		}
	}

	return false
}
