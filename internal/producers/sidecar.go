package producers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"media-catalog/internal/catalog"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/mediatypes"
)

const (
	// DefaultTextMaxBytes caps the excerpt read from notes and metadata files.
	DefaultTextMaxBytes int64 = 1 << 20
	// DefaultSubtitleMaxBytes caps the bytes read from a subtitle file.
	DefaultSubtitleMaxBytes int64 = 8 << 20
)

// fallbackEncodings are tried in order when the configured encoding does not
// decode cleanly. The final resort is lossy UTF-8.
var fallbackEncodings = []string{"shift_jis", "windows-1252"}

var (
	markupTag   = regexp.MustCompile(`<[^>]*>`)
	assOverride = regexp.MustCompile(`\{[^}]*\}`)
)

// SidecarTextConfig bounds and configures sidecar text extraction.
type SidecarTextConfig struct {
	TextMaxBytes     int64
	SubtitleMaxBytes int64
	// Encoding is the WHATWG name of the expected encoding, "utf-8" by default.
	Encoding string
}

// SidecarText reads the text of subtitle, note and metadata sidecars.
type SidecarText struct {
	source   catalog.SourceType
	maxBytes int64
	encoding encoding.Encoding
	encName  string
}

// NewSidecarText returns the producer for one text source type.
func NewSidecarText(source catalog.SourceType, cfg SidecarTextConfig) (*SidecarText, error) {
	if !source.IsText() {
		return nil, catalog.Errorf(catalog.KindConfiguration, "new sidecar producer", "", "%q is not a text source", source)
	}

	name := cfg.Encoding
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, catalog.Errorf(catalog.KindConfiguration, "new sidecar producer", "", "unknown text_encoding %q", name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = strings.ToLower(name)
	}

	maxBytes := cfg.TextMaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultTextMaxBytes
	}
	if source == catalog.SourceSubtitleText {
		maxBytes = cfg.SubtitleMaxBytes
		if maxBytes <= 0 {
			maxBytes = DefaultSubtitleMaxBytes
		}
	}

	return &SidecarText{source: source, maxBytes: maxBytes, encoding: enc, encName: canonical}, nil
}

func (s *SidecarText) Name() string               { return string(s.source) }
func (s *SidecarText) Source() catalog.SourceType { return s.source }

func (s *SidecarText) Produce(ctx context.Context, rec catalog.FileRecord) ([]catalog.Fact, error) {
	f, err := filesystem.OpenWithRetry(rec.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, s.Name(), rec.Path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(newContextFile(ctx, f), s.maxBytes+1))
	if ctx.Err() != nil {
		return nil, catalog.NewError(catalog.KindProducer, s.Name(), rec.Path, ctx.Err())
	}
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, s.Name(), rec.Path, err)
	}
	truncated := int64(len(raw)) > s.maxBytes
	if truncated {
		raw = trimPartialRune(raw[:s.maxBytes])
	}

	text, used, fallback := s.decode(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if s.source == catalog.SourceSubtitleText {
		switch rec.Extension {
		case ".srt", ".vtt":
			text = cueText(text)
		case ".ass", ".ssa":
			text = assDialogue(text)
		}
	}
	text = strings.TrimSpace(text)

	var facts []catalog.Fact
	add := func(key string, value interface{}) {
		facts = append(facts, catalog.NewFact(s.source, rec.Path, key, value))
	}
	if text != "" {
		add(catalog.KeyText, text)
	}
	add("line_count", strconv.Itoa(lineCount(text)))
	add("encoding", used)
	if fallback {
		add(catalog.KeyDecodingFallback, used)
	}
	if truncated {
		add(catalog.KeyTruncated, fmt.Sprintf("read %d bytes", s.maxBytes))
	}
	return facts, nil
}

// decode returns the text, the name of the encoding that produced it and
// whether that was a fallback rather than the configured encoding.
func (s *SidecarText) decode(raw []byte) (string, string, bool) {
	if text, ok := decodeStrict(s.encoding, raw); ok {
		return text, s.encName, false
	}
	for _, name := range fallbackEncodings {
		if name == s.encName {
			continue
		}
		enc, err := htmlindex.Get(name)
		if err != nil {
			continue
		}
		if text, ok := decodeStrict(enc, raw); ok {
			return text, name, true
		}
	}
	return strings.ToValidUTF8(string(bytes.TrimPrefix(raw, utf8BOM)), "\uFFFD"), "utf-8-lossy", true
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeStrict decodes raw with enc and reports whether no byte had to be
// replaced.
func decodeStrict(enc encoding.Encoding, raw []byte) (string, bool) {
	if enc == unicode.UTF8 || enc == encoding.Nop {
		raw = bytes.TrimPrefix(raw, utf8BOM)
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.Contains(raw, []byte("\uFFFD")) {
		return "", false
	}
	return string(out), true
}

// trimPartialRune drops a UTF-8 sequence cut short by the size cap.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}

// cueText keeps only the dialogue of SRT and WebVTT files: blocks without a
// timing line (headers, NOTE and STYLE blocks) are skipped, and cue numbers,
// identifiers and timings are removed.
func cueText(text string) string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		lines := strings.Split(block, "\n")
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}
		for _, line := range lines[timing+1:] {
			if line = cleanDialogue(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return strings.Join(out, "\n")
}

// assDialogue extracts the Text field of Dialogue lines in the [Events] section.
func assDialogue(text string) string {
	var out []string
	inEvents := false
	textField := 9
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inEvents = strings.EqualFold(line, "[Events]")
			continue
		}
		if !inEvents {
			continue
		}
		if rest, ok := cutPrefixFold(line, "Format:"); ok {
			for i, name := range strings.Split(rest, ",") {
				if strings.EqualFold(strings.TrimSpace(name), "Text") {
					textField = i
				}
			}
			continue
		}
		rest, ok := cutPrefixFold(line, "Dialogue:")
		if !ok {
			continue
		}
		fields := strings.SplitN(rest, ",", textField+1)
		if len(fields) <= textField {
			continue
		}
		dialogue := strings.NewReplacer(`\N`, "\n", `\n`, "\n", `\h`, " ").Replace(fields[textField])
		for _, part := range strings.Split(dialogue, "\n") {
			if part = cleanDialogue(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return strings.Join(out, "\n")
}

func cleanDialogue(line string) string {
	line = markupTag.ReplaceAllString(line, "")
	line = assOverride.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

// sidecarProducers builds one SidecarText producer per sidecar category.
func sidecarProducers(cfg SidecarTextConfig) (map[mediatypes.Category]Producer, error) {
	out := make(map[mediatypes.Category]Producer)
	for _, cat := range []mediatypes.Category{mediatypes.CategorySubtitle, mediatypes.CategoryNote, mediatypes.CategoryMeta} {
		source, _ := catalog.TextSourceFor(cat)
		p, err := NewSidecarText(source, cfg)
		if err != nil {
			return nil, err
		}
		out[cat] = p
	}
	return out, nil
}
