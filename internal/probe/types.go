package probe

// Stream kinds as declared by ffprobe's codec_type field.
const (
	KindVideo    = "video"
	KindAudio    = "audio"
	KindSubtitle = "subtitle"
	KindData     = "data"
)

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	NbStreams  int
	FormatName string
	Duration   float64
	Size       int64
	BitRate    int64
}

// Stream holds the parsed properties of a single sub-stream. Kind is the
// declared media type; fields that do not apply to a kind are zero.
type Stream struct {
	Index         int
	Kind          string
	Codec         string
	Profile       string
	PixFmt        string
	Width         int
	Height        int
	Channels      int
	SampleRate    int
	Language      string
	IsAttachedPic bool
}

// Result is the fully parsed output of a single ffprobe call. Streams
// preserves container order so routing sees sub-streams in discovery order.
type Result struct {
	Format  FormatInfo
	Streams []Stream
}

// PrimaryVideo returns the first video stream that is not an attached
// picture (cover art), or nil if the container has none.
func (r *Result) PrimaryVideo() *Stream {
	for i := range r.Streams {
		s := &r.Streams[i]
		if s.Kind == KindVideo && !s.IsAttachedPic {
			return s
		}
	}
	return nil
}

// AudioStreams returns every audio stream in container order.
func (r *Result) AudioStreams() []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if s.Kind == KindAudio {
			out = append(out, s)
		}
	}
	return out
}
