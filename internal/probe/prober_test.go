package probe

import (
	"testing"
)

// Realistic ffprobe JSON for a QuickTime file with:
//   - 1 ProRes HQ video stream (1920x1080)
//   - 1 PCM stereo audio stream (48000 Hz)
//   - 1 timecode data stream (should be ignored by routing)
const sampleProRes = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "prores",
      "codec_type": "video",
      "profile": "HQ",
      "pix_fmt": "yuv422p10le",
      "width": 1920,
      "height": 1080,
      "disposition": { "default": 1, "attached_pic": 0 },
      "tags": {}
    },
    {
      "index": 1,
      "codec_name": "pcm_s16le",
      "codec_type": "audio",
      "channels": 2,
      "sample_rate": "48000",
      "disposition": { "default": 1 },
      "tags": { "language": "eng" }
    },
    {
      "index": 2,
      "codec_name": "none",
      "codec_type": "data",
      "disposition": { "default": 0 },
      "tags": {}
    }
  ],
  "format": {
    "filename": "/media/test/A001C004.mov",
    "nb_streams": 3,
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "93.760000",
    "size": "2183462912",
    "bit_rate": "186321500"
  }
}`

// H.264 file with cover art first, so PrimaryVideo must skip it.
const sampleCoverArt = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "mjpeg",
      "codec_type": "video",
      "width": 600,
      "height": 900,
      "disposition": { "default": 0, "attached_pic": 1 },
      "tags": { "comment": "Cover (front)" }
    },
    {
      "index": 1,
      "codec_name": "h264",
      "codec_type": "video",
      "profile": "High",
      "pix_fmt": "yuv420p",
      "width": 3840,
      "height": 2160,
      "disposition": { "default": 1, "attached_pic": 0 }
    },
    {
      "index": 2,
      "codec_name": "aac",
      "codec_type": "audio",
      "channels": 6,
      "sample_rate": "48000",
      "disposition": { "default": 1 },
      "tags": { "language": "jpn" }
    },
    {
      "index": 3,
      "codec_name": "aac",
      "codec_type": "audio",
      "channels": 2,
      "sample_rate": "44100",
      "disposition": { "default": 0 },
      "tags": { "language": "eng" }
    }
  ],
  "format": {
    "filename": "/media/test/clip.mp4",
    "nb_streams": 4,
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "1437.123000",
    "size": "1234567890",
    "bit_rate": "6873456"
  }
}`

func TestParseJSONProRes(t *testing.T) {
	r, err := ParseJSON([]byte(sampleProRes))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	if r.Format.FormatName != "mov,mp4,m4a,3gp,3g2,mj2" {
		t.Errorf("FormatName = %q", r.Format.FormatName)
	}
	if r.Format.Duration != 93.76 {
		t.Errorf("Duration = %v, want 93.76", r.Format.Duration)
	}
	if r.Format.Size != 2183462912 {
		t.Errorf("Size = %d", r.Format.Size)
	}
	if len(r.Streams) != 3 {
		t.Fatalf("len(Streams) = %d, want 3", len(r.Streams))
	}

	v := r.PrimaryVideo()
	if v == nil {
		t.Fatal("PrimaryVideo() = nil")
	}
	if v.Codec != "prores" || v.Profile != "HQ" {
		t.Errorf("primary video = %s/%s, want prores/HQ", v.Codec, v.Profile)
	}
	if v.Width != 1920 || v.Height != 1080 {
		t.Errorf("dimensions = %dx%d", v.Width, v.Height)
	}

	audio := r.AudioStreams()
	if len(audio) != 1 {
		t.Fatalf("len(AudioStreams) = %d, want 1", len(audio))
	}
	if audio[0].SampleRate != 48000 || audio[0].Channels != 2 {
		t.Errorf("audio = %d ch @ %d Hz", audio[0].Channels, audio[0].SampleRate)
	}

	if r.Streams[2].Kind != KindData {
		t.Errorf("stream 2 kind = %q, want data", r.Streams[2].Kind)
	}
}

func TestPrimaryVideoSkipsCoverArt(t *testing.T) {
	r, err := ParseJSON([]byte(sampleCoverArt))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}

	v := r.PrimaryVideo()
	if v == nil {
		t.Fatal("PrimaryVideo() = nil")
	}
	if v.Index != 1 || v.Codec != "h264" {
		t.Errorf("primary video index=%d codec=%s, want 1/h264", v.Index, v.Codec)
	}

	if got := len(r.AudioStreams()); got != 2 {
		t.Errorf("len(AudioStreams) = %d, want 2", got)
	}
}

func TestParseJSONInvalid(t *testing.T) {
	if _, err := ParseJSON([]byte("{not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestPrimaryVideoNone(t *testing.T) {
	r, err := ParseJSON([]byte(`{"streams": [{"index": 0, "codec_name": "mp3", "codec_type": "audio"}], "format": {"duration": "10.0"}}`))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if r.PrimaryVideo() != nil {
		t.Error("expected nil primary video for audio-only file")
	}
}
