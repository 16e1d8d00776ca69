package producers

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	xtiff "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-catalog/internal/catalog"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
)

// goexif buffers whatever it is given, so its input is capped. EXIF sits
// near the start of JPEG and friends; in a TIFF it is an IFD that may come
// after the first strips.
const (
	exifScanLimit = 1 << 20
	tiffScanLimit = 16 << 20
)

// exifFields are copied verbatim when present.
var exifFields = []struct {
	key   string
	field exif.FieldName
}{
	{"date_time", exif.DateTime},
	{"date_time_original", exif.DateTimeOriginal},
	{"make", exif.Make},
	{"model", exif.Model},
	{"orientation", exif.Orientation},
	{"software", exif.Software},
}

// ImageExif reads image dimensions from the header and EXIF tags.
type ImageExif struct {
	log logging.Logger
}

// NewImageExif returns an ImageExif producer.
func NewImageExif() *ImageExif {
	return &ImageExif{log: logging.For("exif")}
}

func (e *ImageExif) Name() string               { return "imageexif" }
func (e *ImageExif) Source() catalog.SourceType { return catalog.SourceExif }

func (e *ImageExif) Produce(ctx context.Context, rec catalog.FileRecord) ([]catalog.Fact, error) {
	f, err := filesystem.OpenWithRetry(rec.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, e.Name(), rec.Path, err)
	}
	defer f.Close()
	r := newContextFile(ctx, f)

	var facts []catalog.Fact
	add := func(key string, value interface{}) {
		facts = append(facts, catalog.NewFact(catalog.SourceExif, rec.Path, key, value))
	}

	isTIFF := hasTIFFHeader(r)
	var cfg image.Config
	format := "tiff"
	if isTIFF {
		// A ReaderAt lets the decoder fetch only the IFD it needs.
		cfg, err = xtiff.DecodeConfig(r)
	} else {
		cfg, format, err = image.DecodeConfig(r)
	}
	if err != nil {
		e.log.Debug("No decodable image header in %s: %v", rec.Path, err)
	} else {
		if cfg.Width > 0 {
			add("width", cfg.Width)
		}
		if cfg.Height > 0 {
			add("height", cfg.Height)
		}
	}
	if err == nil || isTIFF {
		add("format", format)
	}

	if ctx.Err() != nil {
		return facts, catalog.NewError(catalog.KindProducer, e.Name(), rec.Path, ctx.Err())
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return facts, catalog.NewError(catalog.KindIO, e.Name(), rec.Path, err)
	}

	limit := int64(exifScanLimit)
	if isTIFF {
		limit = tiffScanLimit
		if rec.SizeBytes > limit {
			add(catalog.KeyTruncated, fmt.Sprintf("exif read from first %d bytes", limit))
		}
	}
	x, err := exif.Decode(io.LimitReader(r, limit))
	if ctx.Err() != nil {
		return facts, catalog.NewError(catalog.KindProducer, e.Name(), rec.Path, ctx.Err())
	}
	if x == nil {
		// Most PNG, GIF and WebP files simply have no EXIF block.
		e.log.Debug("No EXIF in %s: %v", rec.Path, err)
		return facts, nil
	}
	if err != nil {
		e.log.Debug("Partial EXIF in %s: %v", rec.Path, err)
	}

	for _, ef := range exifFields {
		tag, err := x.Get(ef.field)
		if err != nil {
			continue
		}
		if v := tagValue(tag); v != "" {
			add(ef.key, v)
		}
	}

	if lat, long, err := x.LatLong(); err == nil {
		add("gps_latitude", strconv.FormatFloat(lat, 'f', 6, 64))
		add("gps_longitude", strconv.FormatFloat(long, 'f', 6, 64))
	}

	return facts, nil
}

// hasTIFFHeader reports whether r starts with a little- or big-endian TIFF
// byte order mark.
func hasTIFFHeader(r io.ReaderAt) bool {
	var head [4]byte
	if _, err := r.ReadAt(head[:], 0); err != nil {
		return false
	}
	return string(head[:]) == "II*\x00" || string(head[:]) == "MM\x00*"
}

// tagValue renders a tag as a short scalar.
func tagValue(tag *tiff.Tag) string {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(s, "\x00"))
	case tiff.IntVal:
		if tag.Count == 0 {
			return ""
		}
		n, err := tag.Int64(0)
		if err != nil {
			return ""
		}
		return strconv.FormatInt(n, 10)
	default:
		return strings.Trim(tag.String(), `"`)
	}
}
