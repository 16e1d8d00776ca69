package producers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/metrics"
)

// MediaProbe reads container and stream metadata with ffprobe.
type MediaProbe struct {
	// Binary is the ffprobe executable, resolved through PATH when not absolute.
	Binary string
}

// NewMediaProbe returns a MediaProbe. An empty binary means "ffprobe".
func NewMediaProbe(binary string) *MediaProbe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &MediaProbe{Binary: binary}
}

func (m *MediaProbe) Name() string               { return "mediaprobe" }
func (m *MediaProbe) Source() catalog.SourceType { return catalog.SourceFFprobe }

// probeOutput is the subset of ffprobe's JSON we use.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	SampleRate   string            `json:"sample_rate"`
	Channels     int               `json:"channels"`
	Tags         map[string]string `json:"tags"`
}

type probeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// containerTags are copied from the format section when present.
var containerTags = []string{"title", "artist", "album", "date", "genre"}

func (m *MediaProbe) Produce(ctx context.Context, rec catalog.FileRecord) ([]catalog.Fact, error) {
	start := time.Now()
	defer func() {
		metrics.FFprobeDuration.Observe(time.Since(start).Seconds())
	}()

	cmd := exec.CommandContext(ctx, m.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		rec.Path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, catalog.Errorf(catalog.KindProducer, m.Name(), rec.Path, "ffprobe binary %q not found", m.Binary)
		}
		if ctx.Err() != nil {
			return nil, catalog.NewError(catalog.KindProducer, m.Name(), rec.Path, ctx.Err())
		}
		return nil, catalog.Errorf(catalog.KindProducer, m.Name(), rec.Path,
			"ffprobe error: %v - %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, catalog.Errorf(catalog.KindProducer, m.Name(), rec.Path, "decoding ffprobe output: %v", err)
	}

	return probeFacts(rec.Path, out), nil
}

func probeFacts(origin string, out probeOutput) []catalog.Fact {
	var facts []catalog.Fact
	add := func(key string, value interface{}) {
		facts = append(facts, catalog.NewFact(catalog.SourceFFprobe, origin, key, value))
	}

	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
		add("duration", strconv.FormatFloat(d, 'f', 3, 64))
	}
	if out.Format.FormatName != "" {
		add("format_name", out.Format.FormatName)
	}
	if out.Format.BitRate != "" {
		add("bit_rate", out.Format.BitRate)
	}

	var video, audio *probeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}

	if video != nil {
		if video.CodecName != "" {
			add("video_codec", video.CodecName)
		}
		if video.Width > 0 && video.Height > 0 {
			add("width", video.Width)
			add("height", video.Height)
		}
		if fps, ok := parseFrameRate(video.AvgFrameRate); ok {
			add("fps", fps)
		} else if fps, ok := parseFrameRate(video.RFrameRate); ok {
			add("fps", fps)
		}
	}

	if audio != nil {
		if audio.CodecName != "" {
			add("audio_codec", audio.CodecName)
		}
		if audio.SampleRate != "" {
			add("sample_rate", audio.SampleRate)
		}
		if audio.Channels > 0 {
			add("channels", audio.Channels)
		}
	}

	if lang := streamLanguage(audio, out.Streams); lang != "" {
		add("language", lang)
	}

	for _, key := range containerTags {
		if v := lookupTag(out.Format.Tags, key); v != "" {
			add(key, v)
		}
	}
	return facts
}

// parseFrameRate turns ffprobe's "30000/1001" notation into "29.97".
func parseFrameRate(s string) (string, bool) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return "", false
	}
	if found {
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d <= 0 {
			return "", false
		}
		n /= d
	}
	out := strconv.FormatFloat(n, 'f', 2, 64)
	out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	return out, true
}

// streamLanguage prefers the first audio stream's language tag.
func streamLanguage(audio *probeStream, streams []probeStream) string {
	if audio != nil {
		if lang := lookupTag(audio.Tags, "language"); lang != "" && lang != "und" {
			return lang
		}
	}
	for _, s := range streams {
		if lang := lookupTag(s.Tags, "language"); lang != "" && lang != "und" {
			return lang
		}
	}
	return ""
}

// lookupTag matches tag keys case-insensitively; containers disagree on case.
func lookupTag(tags map[string]string, key string) string {
	if v, ok := tags[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
