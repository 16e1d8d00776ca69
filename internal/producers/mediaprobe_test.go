package producers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"media-catalog/internal/catalog"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001"},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2,
     "tags": {"language": "eng"}}
  ],
  "format": {
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "5025.123456",
    "bit_rate": "4500000",
    "tags": {"TITLE": "Pilot", "artist": "Studio", "date": "2021"}
  }
}`

func TestParseFrameRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"30000/1001", "29.97", true},
		{"25/1", "25", true},
		{"24", "24", true},
		{"0/0", "", false},
		{"30/0", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseFrameRate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseFrameRate(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// fakeProbe installs a shell script standing in for ffprobe.
func fakeProbe(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMediaProbe(t *testing.T) {
	t.Parallel()

	bin := fakeProbe(t, "cat <<'EOF'\n"+probeJSON+"\nEOF\n")
	rec := writeFile(t, t.TempDir(), "pilot.mp4", []byte("not really a video"))

	facts, err := NewMediaProbe(bin).Produce(context.Background(), rec)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	want := map[string]string{
		"duration":    "5025.123",
		"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
		"bit_rate":    "4500000",
		"video_codec": "h264",
		"width":       "1920",
		"height":      "1080",
		"fps":         "29.97",
		"audio_codec": "aac",
		"sample_rate": "48000",
		"channels":    "2",
		"language":    "eng",
		"title":       "Pilot",
		"artist":      "Studio",
		"date":        "2021",
	}
	for key, w := range want {
		if got := value(facts, key); got != w {
			t.Errorf("%s = %q, want %q", key, got, w)
		}
	}
	if got := value(facts, "album"); got != "" {
		t.Errorf("album = %q, want absent", got)
	}
	for _, f := range facts {
		if f.Source != catalog.SourceFFprobe || f.Origin != rec.Path {
			t.Errorf("fact %+v has wrong provenance", f)
		}
	}
}

func TestMediaProbeFailures(t *testing.T) {
	t.Parallel()

	rec := writeFile(t, t.TempDir(), "clip.mkv", []byte("x"))

	tests := []struct {
		name string
		bin  string
	}{
		{"missing binary", filepath.Join(t.TempDir(), "no-ffprobe")},
		{"non-zero exit", fakeProbe(t, "echo 'Invalid data found' >&2\nexit 1\n")},
		{"garbage output", fakeProbe(t, "echo 'not json'\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMediaProbe(tt.bin).Produce(context.Background(), rec)
			if !errors.Is(err, catalog.ErrProducer) {
				t.Errorf("err = %v, want ProducerError", err)
			}
		})
	}
}

func TestMediaProbeTimeout(t *testing.T) {
	t.Parallel()

	bin := fakeProbe(t, "exec sleep 5\n")
	rec := writeFile(t, t.TempDir(), "slow.mp4", []byte("x"))

	start := time.Now()
	out := NewRunner(100*time.Millisecond).RunAll(context.Background(), []Producer{NewMediaProbe(bin)}, rec)
	if !errors.Is(out.Err(), catalog.ErrProducer) {
		t.Errorf("err = %v, want ProducerError", out.Err())
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
	if got := value(out.Facts, catalog.KeyProducerError); got == "" {
		t.Error("expected a producer_error fact")
	}
}
