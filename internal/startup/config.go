package startup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"media-catalog/internal/archive"
	"media-catalog/internal/catalog"
	"media-catalog/internal/corpus"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/producers"
)

const (
	// EnvPrefix prefixes every environment override: CATALOG_ROOT_PATH -> root_path.
	EnvPrefix = "CATALOG_"

	maxConfigFileSize = 1 << 20

	// Extension keys such as ".cbz" contain dots, so key paths use "/".
	keyDelim = "/"
)

// Config holds all application configuration.
type Config struct {
	RootPath    string `koanf:"root_path"`
	AllowedRoot string `koanf:"allowed_root"`

	ArchiveMaxEntries      int   `koanf:"archive_max_entries"`
	ArchiveMaxTotalSize    int64 `koanf:"archive_max_total_size"`
	ArchiveMaxEntrySize    int64 `koanf:"archive_max_entry_size"`
	ArchiveMaxNestingDepth int   `koanf:"archive_max_nesting_depth"`

	TextExtractMaxBytes int64  `koanf:"text_extract_max_bytes"`
	SubtitleMaxBytes    int64  `koanf:"subtitle_max_bytes"`
	TextEncoding        string `koanf:"text_encoding"`
	ProducerTimeoutMS   int    `koanf:"producer_timeout_ms"`

	ExtensionCategoryMap map[string]string `koanf:"extension_category_map"`

	DatabasePath string `koanf:"database_path"`
	Workers      int    `koanf:"workers"`
	FFprobePath  string `koanf:"ffprobe_path"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
	IndexUnknown bool   `koanf:"index_unknown"`
	SkipHidden   bool   `koanf:"skip_hidden"`

	Port            string        `koanf:"port"`
	IndexInterval   time.Duration `koanf:"index_interval"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	MetricsEnabled  bool          `koanf:"metrics_enabled"`
	LogHealthChecks bool          `koanf:"log_health_checks"`

	// Source is the config file that was loaded, empty when none was.
	Source string `koanf:"-"`
}

// DefaultConfig returns the configuration used for every option left unset.
func DefaultConfig() Config {
	return Config{
		ArchiveMaxEntries:      archive.DefaultMaxEntries,
		ArchiveMaxTotalSize:    archive.DefaultMaxTotalSize,
		ArchiveMaxEntrySize:    archive.DefaultMaxEntrySize,
		ArchiveMaxNestingDepth: archive.DefaultMaxNestingDepth,
		TextExtractMaxBytes:    producers.DefaultTextMaxBytes,
		SubtitleMaxBytes:       producers.DefaultSubtitleMaxBytes,
		TextEncoding:           "utf-8",
		ProducerTimeoutMS:      30000,
		DatabasePath:           "media-catalog.db",
		ChunkSize:              corpus.DefaultChunkSize,
		ChunkOverlap:           corpus.DefaultChunkOverlap,
		SkipHidden:             true,
		Port:                   "8080",
		IndexInterval:          30 * time.Minute,
		PollInterval:           30 * time.Second,
		MetricsEnabled:         true,
		LogHealthChecks:        true,
	}
}

// LoadConfig reads configuration from the YAML file at path (optional) and
// then from CATALOG_* environment variables, which take precedence. Options
// not set by either keep their DefaultConfig value; unknown options are ignored.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(keyDelim)

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, catalog.NewError(catalog.KindConfiguration, "load config", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, keyDelim, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, catalog.NewError(catalog.KindConfiguration, "load config", "", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, catalog.NewError(catalog.KindConfiguration, "load config", path, err)
	}
	cfg.Source = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, catalog.NewError(catalog.KindConfiguration, "read config", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, catalog.NewError(catalog.KindConfiguration, "read config", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, catalog.Errorf(catalog.KindConfiguration, "read config", path,
			"config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, catalog.NewError(catalog.KindConfiguration, "read config", path, err)
	}
	return content, nil
}

// Validate checks required options and bounds, and resolves root_path and
// allowed_root to absolute paths. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return catalog.Errorf(catalog.KindConfiguration, "validate config", "", format, args...)
	}

	switch {
	case c.RootPath == "":
		return invalid("root_path is required")
	case c.AllowedRoot == "":
		return invalid("allowed_root is required")
	case c.ArchiveMaxEntries <= 0:
		return invalid("archive_max_entries must be positive, got %d", c.ArchiveMaxEntries)
	case c.ArchiveMaxTotalSize <= 0:
		return invalid("archive_max_total_size must be positive, got %d", c.ArchiveMaxTotalSize)
	case c.ArchiveMaxEntrySize <= 0:
		return invalid("archive_max_entry_size must be positive, got %d", c.ArchiveMaxEntrySize)
	case c.ArchiveMaxNestingDepth < 0:
		return invalid("archive_max_nesting_depth must not be negative, got %d", c.ArchiveMaxNestingDepth)
	case c.TextExtractMaxBytes <= 0:
		return invalid("text_extract_max_bytes must be positive, got %d", c.TextExtractMaxBytes)
	case c.SubtitleMaxBytes <= 0:
		return invalid("subtitle_max_bytes must be positive, got %d", c.SubtitleMaxBytes)
	case c.ProducerTimeoutMS <= 0:
		return invalid("producer_timeout_ms must be positive, got %d", c.ProducerTimeoutMS)
	case c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return invalid("chunk_overlap must be in [0, chunk_size), got size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	case c.Workers < 0:
		return invalid("workers must not be negative, got %d", c.Workers)
	}

	root, err := filepath.Abs(c.RootPath)
	if err != nil {
		return catalog.NewError(catalog.KindConfiguration, "validate config", c.RootPath, err)
	}
	allowed, err := filepath.Abs(c.AllowedRoot)
	if err != nil {
		return catalog.NewError(catalog.KindConfiguration, "validate config", c.AllowedRoot, err)
	}
	if !filesystem.Within(allowed, root) {
		return catalog.Errorf(catalog.KindConfiguration, "validate config", root,
			"root_path is not within allowed_root %s", allowed)
	}
	c.RootPath, c.AllowedRoot = root, allowed
	return nil
}

// ProducerTimeout returns producer_timeout_ms as a duration.
func (c *Config) ProducerTimeout() time.Duration {
	return time.Duration(c.ProducerTimeoutMS) * time.Millisecond
}

// LogConfig prints the effective configuration.
func LogConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if c.Source != "" {
		logging.Info("  Config file:               %s", c.Source)
	} else {
		logging.Info("  Config file:               (none, environment only)")
	}
	logging.Info("  root_path:                 %s", c.RootPath)
	logging.Info("  allowed_root:              %s", c.AllowedRoot)
	logging.Info("  database_path:             %s", c.DatabasePath)
	logging.Info("  archive_max_entries:       %d", c.ArchiveMaxEntries)
	logging.Info("  archive_max_total_size:    %s", formatBytes(c.ArchiveMaxTotalSize))
	logging.Info("  archive_max_entry_size:    %s", formatBytes(c.ArchiveMaxEntrySize))
	logging.Info("  archive_max_nesting_depth: %d", c.ArchiveMaxNestingDepth)
	logging.Info("  text_extract_max_bytes:    %s", formatBytes(c.TextExtractMaxBytes))
	logging.Info("  subtitle_max_bytes:        %s", formatBytes(c.SubtitleMaxBytes))
	logging.Info("  text_encoding:             %s", c.TextEncoding)
	logging.Info("  producer_timeout_ms:       %d", c.ProducerTimeoutMS)
	logging.Info("  chunk_size/chunk_overlap:  %d/%d", c.ChunkSize, c.ChunkOverlap)
	if c.Workers > 0 {
		logging.Info("  workers:                   %d", c.Workers)
	} else {
		logging.Info("  workers:                   auto")
	}
	logging.Info("  index_unknown:             %v", c.IndexUnknown)
	logging.Info("  skip_hidden:               %v", c.SkipHidden)
	logging.Info("  index_interval:            %v", c.IndexInterval)
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())

	if len(c.ExtensionCategoryMap) > 0 {
		exts := make([]string, 0, len(c.ExtensionCategoryMap))
		for ext := range c.ExtensionCategoryMap {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		logging.Info("  extension_category_map:")
		for _, ext := range exts {
			logging.Info("    %-10s -> %s", ext, c.ExtensionCategoryMap[ext])
		}
	}
	logging.Info("")
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
