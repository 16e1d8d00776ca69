package mediatypes

import (
	"path/filepath"
	"strings"
)

// Category classifies a file by its extension.
type Category string

const (
	// CategoryVideo represents a video container.
	CategoryVideo Category = "video"
	// CategoryImage represents a still image.
	CategoryImage Category = "image"
	// CategoryAudio represents an audio file.
	CategoryAudio Category = "audio"
	// CategoryArchive represents an archive container.
	CategoryArchive Category = "archive"
	// CategorySubtitle represents a subtitle sidecar.
	CategorySubtitle Category = "subtitle"
	// CategoryNote represents a free-form note sidecar.
	CategoryNote Category = "note"
	// CategoryMeta represents a structured metadata sidecar.
	CategoryMeta Category = "meta"
	// CategoryUnknown represents an unrecognized extension.
	CategoryUnknown Category = "unknown"
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{
	CategoryVideo,
	CategoryImage,
	CategoryAudio,
	CategoryArchive,
	CategorySubtitle,
	CategoryNote,
	CategoryMeta,
	CategoryUnknown,
}

// IsSidecar reports whether files of this category attach to a primary file.
func (c Category) IsSidecar() bool {
	return c == CategorySubtitle || c == CategoryNote || c == CategoryMeta
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// DefaultExtensions maps lowercase extensions (with leading dot) to categories.
var DefaultExtensions = map[string]Category{
	// Videos
	".mp4":  CategoryVideo,
	".mkv":  CategoryVideo,
	".avi":  CategoryVideo,
	".mov":  CategoryVideo,
	".wmv":  CategoryVideo,
	".flv":  CategoryVideo,
	".webm": CategoryVideo,
	".m4v":  CategoryVideo,
	".mpeg": CategoryVideo,
	".mpg":  CategoryVideo,
	".3gp":  CategoryVideo,
	".ts":   CategoryVideo,

	// Images
	".jpg":  CategoryImage,
	".jpeg": CategoryImage,
	".png":  CategoryImage,
	".gif":  CategoryImage,
	".bmp":  CategoryImage,
	".webp": CategoryImage,
	".tiff": CategoryImage,
	".tif":  CategoryImage,
	".heic": CategoryImage,
	".heif": CategoryImage,

	// Audio
	".mp3":  CategoryAudio,
	".flac": CategoryAudio,
	".wav":  CategoryAudio,
	".m4a":  CategoryAudio,
	".aac":  CategoryAudio,
	".ogg":  CategoryAudio,
	".opus": CategoryAudio,
	".wma":  CategoryAudio,

	// Archives
	".zip": CategoryArchive,
	".tar": CategoryArchive,
	".gz":  CategoryArchive,
	".tgz": CategoryArchive,
	".bz2": CategoryArchive,
	".xz":  CategoryArchive,
	".zst": CategoryArchive,
	".7z":  CategoryArchive,
	".rar": CategoryArchive,

	// Sidecars
	".srt":  CategorySubtitle,
	".vtt":  CategorySubtitle,
	".ass":  CategorySubtitle,
	".txt":  CategoryNote,
	".md":   CategoryNote,
	".nfo":  CategoryMeta,
	".json": CategoryMeta,
	".xml":  CategoryMeta,
}

// compoundExtensions are multi-dot suffixes treated as a single extension.
var compoundExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",

	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wma":  "audio/x-ms-wma",

	".zip":     "application/zip",
	".tar":     "application/x-tar",
	".gz":      "application/gzip",
	".tgz":     "application/gzip",
	".tar.gz":  "application/gzip",
	".bz2":     "application/x-bzip2",
	".tar.bz2": "application/x-bzip2",
	".xz":      "application/x-xz",
	".tar.xz":  "application/x-xz",
	".zst":     "application/zstd",
	".tar.zst": "application/zstd",
	".7z":      "application/x-7z-compressed",
	".rar":     "application/vnd.rar",

	".srt":  "application/x-subrip",
	".vtt":  "text/vtt",
	".ass":  "text/x-ssa",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".nfo":  "text/plain",
	".json": "application/json",
	".xml":  "application/xml",
}

// Extension returns the lowercase extension of name including the leading dot.
// Known compound archive suffixes such as ".tar.gz" are returned whole.
func Extension(name string) string {
	lower := strings.ToLower(name)
	for _, compound := range compoundExtensions {
		if strings.HasSuffix(lower, compound) && len(lower) > len(compound) {
			return compound
		}
	}
	return strings.ToLower(filepath.Ext(name))
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Table is an immutable extension → category lookup.
type Table struct {
	categories map[string]Category
}

// NewTable builds a Table from DefaultExtensions with overrides applied on top.
// Override keys are normalized to lowercase with a leading dot; override values
// that are not known categories are ignored and reported in the returned slice.
func NewTable(overrides map[string]string) (*Table, []string) {
	categories := make(map[string]Category, len(DefaultExtensions)+len(overrides))
	for ext, cat := range DefaultExtensions {
		categories[ext] = cat
	}

	var rejected []string
	for ext, value := range overrides {
		key := strings.ToLower(strings.TrimSpace(ext))
		if key == "" {
			continue
		}
		if !strings.HasPrefix(key, ".") {
			key = "." + key
		}
		cat := Category(strings.ToLower(strings.TrimSpace(value)))
		if !cat.Valid() {
			rejected = append(rejected, ext)
			continue
		}
		categories[key] = cat
	}

	return &Table{categories: categories}, rejected
}

// DefaultTable returns a Table with no overrides.
func DefaultTable() *Table {
	t, _ := NewTable(nil)
	return t
}

// Category returns the category for ext (lowercase, with leading dot).
func (t *Table) Category(ext string) Category {
	if t == nil {
		return CategoryUnknown
	}
	if cat, ok := t.categories[ext]; ok {
		return cat
	}
	// ".tar.gz" and friends fall back to their last component.
	if i := strings.LastIndex(ext, "."); i > 0 {
		if cat, ok := t.categories[ext[i:]]; ok {
			return cat
		}
	}
	return CategoryUnknown
}

// CategoryOf classifies a file name.
func (t *Table) CategoryOf(name string) Category {
	return t.Category(Extension(name))
}
