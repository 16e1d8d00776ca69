package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/mholt/archives"
	"golang.org/x/text/encoding"

	"media-catalog/internal/catalog"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

const (
	// DefaultMaxEntries is the default cap on headers read per archive.
	DefaultMaxEntries = 50000
	// DefaultMaxTotalSize is the default cap on the sum of declared sizes (50 GiB).
	DefaultMaxTotalSize int64 = 50 << 30
	// DefaultMaxEntrySize flags single entries above 4 GiB as suspicious.
	DefaultMaxEntrySize int64 = 4 << 30
	// DefaultMaxNestingDepth bounds how deep nested archives are tracked.
	DefaultMaxNestingDepth = 2

	maxWarnings = 100
)

// errStopWalk aborts the header walk once a limit is reached.
var errStopWalk = errors.New("archive walk stopped at limit")

// Limits bounds the work done listing one archive.
type Limits struct {
	MaxEntries      int
	MaxTotalSize    int64
	MaxEntrySize    int64
	MaxNestingDepth int
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:      DefaultMaxEntries,
		MaxTotalSize:    DefaultMaxTotalSize,
		MaxEntrySize:    DefaultMaxEntrySize,
		MaxNestingDepth: DefaultMaxNestingDepth,
	}
}

// Config configures an Inspector.
type Config struct {
	Limits
	// AllowedRoot is the directory every listed archive must live under.
	AllowedRoot string
	// Timeout bounds a single List call. Zero means no timeout beyond ctx.
	Timeout time.Duration
	// Table classifies entry names to detect nested archives.
	Table *mediatypes.Table
	// NameEncoding decodes zip entry names not flagged as UTF-8. Optional.
	NameEncoding encoding.Encoding
}

// Inspector lists archive contents without extracting them.
type Inspector struct {
	cfg Config
	log logging.Logger
}

// NewInspector validates cfg and returns an Inspector.
func NewInspector(cfg Config) (*Inspector, error) {
	if cfg.AllowedRoot == "" {
		return nil, catalog.Errorf(catalog.KindConfiguration, "new inspector", "", "allowed_root is required")
	}
	if cfg.MaxEntries <= 0 || cfg.MaxTotalSize <= 0 || cfg.MaxEntrySize <= 0 || cfg.MaxNestingDepth < 0 {
		return nil, catalog.Errorf(catalog.KindConfiguration, "new inspector", "",
			"invalid limits: entries=%d total=%d entry=%d depth=%d",
			cfg.MaxEntries, cfg.MaxTotalSize, cfg.MaxEntrySize, cfg.MaxNestingDepth)
	}
	root, err := filepath.Abs(cfg.AllowedRoot)
	if err != nil {
		return nil, catalog.NewError(catalog.KindConfiguration, "new inspector", cfg.AllowedRoot, err)
	}
	cfg.AllowedRoot = root
	if cfg.Table == nil {
		cfg.Table = mediatypes.DefaultTable()
	}
	return &Inspector{cfg: cfg, log: logging.For("archive")}, nil
}

// Limits returns the configured limits.
func (in *Inspector) Limits() Limits { return in.cfg.Limits }

// List enumerates a top-level archive.
func (in *Inspector) List(ctx context.Context, archivePath string) (*catalog.ArchiveListing, error) {
	return in.ListAt(ctx, archivePath, 0)
}

// ListAt enumerates an archive that sits at the given nesting depth.
// Nested archive entries it finds are reported at depth+1.
//
// On ResourceLimitExceeded, and on IOError after some entries were read, the
// partial listing is returned together with the error.
func (in *Inspector) ListAt(ctx context.Context, archivePath string, depth int) (listing *catalog.ArchiveListing, err error) {
	start := time.Now()
	defer func() {
		metrics.ArchiveListingDuration.Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			metrics.ArchiveListingsTotal.WithLabelValues(string(catalog.KindOf(err))).Inc()
		case listing != nil && listing.Truncated:
			metrics.ArchiveListingsTotal.WithLabelValues("truncated").Inc()
		default:
			metrics.ArchiveListingsTotal.WithLabelValues("ok").Inc()
		}
		if listing != nil {
			metrics.ArchiveEntriesListed.Observe(float64(len(listing.Entries)))
		}
	}()

	const op = "list archive"

	if !filesystem.Within(in.cfg.AllowedRoot, archivePath) {
		in.log.Warn("Refusing archive outside allowed root %s: %s", in.cfg.AllowedRoot, archivePath)
		return nil, catalog.Errorf(catalog.KindPathTraversal, op, archivePath, "outside allowed root %s", in.cfg.AllowedRoot)
	}

	if in.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.Timeout)
		defer cancel()
	}

	f, err := filesystem.OpenWithRetry(archivePath, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, op, archivePath, err)
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(archivePath), f)
	if err != nil {
		if ctx.Err() != nil {
			return nil, catalog.NewError(catalog.KindIO, op, archivePath, ctx.Err())
		}
		if errors.Is(err, archives.NoMatch) {
			return nil, catalog.Errorf(catalog.KindUnsupportedFormat, op, archivePath, "unrecognized container")
		}
		return nil, catalog.NewError(catalog.KindUnsupportedFormat, op, archivePath, err)
	}

	extractor, ok := in.extractorFor(format)
	if !ok {
		return nil, catalog.Errorf(catalog.KindUnsupportedFormat, op, archivePath,
			"%s is a compressed stream, not an archive", strings.TrimPrefix(format.Extension(), "."))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, catalog.NewError(catalog.KindIO, op, archivePath, err)
	}

	w := &walk{
		limits:  in.cfg.Limits,
		table:   in.cfg.Table,
		depth:   depth,
		log:     in.log,
		listing: &catalog.ArchiveListing{ArchivePath: archivePath, Format: strings.TrimPrefix(format.Extension(), ".")},
	}

	walkErr := extractor.Extract(ctx, f, w.handle)
	listing = w.listing

	switch {
	case walkErr == nil:
		return listing, nil
	case errors.Is(walkErr, errStopWalk):
		return listing, catalog.Errorf(catalog.KindResourceLimit, op, archivePath, "%s", w.limitReason)
	case ctx.Err() != nil:
		listing.Truncated = true
		return listing, catalog.Errorf(catalog.KindIO, op, archivePath, "listing interrupted after %d headers: %w", w.seen, ctx.Err())
	case w.seen == 0:
		if _, isZip := format.(archives.Zip); isZip {
			return in.salvageZip(ctx, f, w, walkErr)
		}
		return nil, catalog.NewError(catalog.KindUnsupportedFormat, op, archivePath, walkErr)
	default:
		listing.Truncated = true
		return listing, catalog.Errorf(catalog.KindIO, op, archivePath, "reading headers after %d entries: %w", w.seen, walkErr)
	}
}

// extractorFor returns the header walker for format, if it has one.
func (in *Inspector) extractorFor(format archives.Format) (archives.Extractor, bool) {
	switch f := format.(type) {
	case archives.CompressedArchive:
		if f.Extraction == nil {
			return nil, false
		}
		return f, true
	case archives.Zip:
		if in.cfg.NameEncoding != nil {
			f.TextEncoding = in.cfg.NameEncoding
		}
		return f, true
	case archives.Extractor:
		return f, true
	default:
		return nil, false
	}
}

// walk holds the per-call counters of one listing.
type walk struct {
	limits      Limits
	table       *mediatypes.Table
	depth       int
	log         logging.Logger
	listing     *catalog.ArchiveListing
	seen        int
	limitReason string
}

func (w *walk) handle(_ context.Context, fi archives.FileInfo) error {
	return w.add(header{
		name:       fi.NameInArchive,
		linkTarget: fi.LinkTarget,
		isDir:      fi.IsDir(),
		size:       declaredSize(fi),
	})
}

// header is what the walk needs from one archive header, whichever reader
// produced it.
type header struct {
	name       string
	linkTarget string
	isDir      bool
	size       int64
}

func (w *walk) add(h header) error {
	if w.seen >= w.limits.MaxEntries {
		return w.stop(fmt.Sprintf("more than %d entries", w.limits.MaxEntries))
	}
	w.seen++

	name, why := normalizeEntryPath(h.name)
	switch why {
	case rejectNone:
	case rejectEmpty:
		return nil
	default:
		w.drop("traversal", h.name, string(why))
		return nil
	}

	if h.linkTarget != "" && linkEscapes(name, h.linkTarget) {
		w.drop("symlink", h.name, fmt.Sprintf("link target %q escapes archive root", h.linkTarget))
		return nil
	}

	isDir := h.isDir
	size := h.size
	if size < 0 {
		size = math.MaxInt64
	}
	if isDir {
		size = 0
	}

	if size > w.limits.MaxTotalSize-w.listing.DeclaredTotal {
		return w.stop(fmt.Sprintf("declared total would exceed %d bytes", w.limits.MaxTotalSize))
	}
	w.listing.DeclaredTotal += size

	entry := catalog.ArchiveEntry{
		ArchivePath:    w.listing.ArchivePath,
		InternalPath:   name,
		EntrySize:      size,
		IsDirectory:    isDir,
		SuspiciousSize: size > w.limits.MaxEntrySize,
	}
	if !isDir && w.table.CategoryOf(name) == mediatypes.CategoryArchive {
		entry.NestedArchive = true
		entry.NestingDepth = w.depth + 1
		entry.DepthLimited = entry.NestingDepth > w.limits.MaxNestingDepth
	}
	if entry.SuspiciousSize {
		w.warn("entry %q declares %d bytes", name, size)
	}

	w.listing.Entries = append(w.listing.Entries, entry)
	return nil
}

// declaredSize returns the header's uncompressed size. Negative values come
// from overflowing 64-bit headers and are treated as maximal.
func declaredSize(fi fs.FileInfo) int64 {
	size := fi.Size()
	if size < 0 {
		return math.MaxInt64
	}
	return size
}

func (w *walk) stop(reason string) error {
	w.listing.Truncated = true
	w.limitReason = reason
	w.warn("listing truncated: %s", reason)
	return errStopWalk
}

func (w *walk) drop(reason, raw, detail string) {
	w.listing.DroppedTraversal++
	metrics.ArchiveEntriesDropped.WithLabelValues(reason).Inc()
	w.warn("dropped entry %q: %s", raw, detail)
}

func (w *walk) warn(format string, args ...interface{}) {
	if len(w.listing.Warnings) >= maxWarnings {
		return
	}
	msg := fmt.Sprintf(format, args...)
	w.listing.Warnings = append(w.listing.Warnings, msg)
	w.log.Warn("%s: %s", w.listing.ArchivePath, msg)
}
