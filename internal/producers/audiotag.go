package producers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"media-catalog/internal/catalog"
	"media-catalog/internal/filesystem"
)

// AudioTag reads ID3, MP4, FLAC and Ogg tags.
type AudioTag struct{}

func (a *AudioTag) Name() string               { return "audiotag" }
func (a *AudioTag) Source() catalog.SourceType { return catalog.SourceTag }

func (a *AudioTag) Produce(ctx context.Context, rec catalog.FileRecord) ([]catalog.Fact, error) {
	f, err := filesystem.OpenWithRetry(rec.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, a.Name(), rec.Path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(newContextFile(ctx, f))
	if ctx.Err() != nil {
		return nil, catalog.NewError(catalog.KindProducer, a.Name(), rec.Path, ctx.Err())
	}
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil, nil
		}
		return nil, catalog.Errorf(catalog.KindProducer, a.Name(), rec.Path, "reading tags: %v", err)
	}

	return tagFacts(rec.Path, m), nil
}

func tagFacts(origin string, m tag.Metadata) []catalog.Fact {
	var facts []catalog.Fact
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			facts = append(facts, catalog.NewFact(catalog.SourceTag, origin, key, value))
		}
	}

	add("title", m.Title())
	add("artist", m.Artist())
	add("album", m.Album())
	add("album_artist", m.AlbumArtist())
	add("composer", m.Composer())
	add("genre", m.Genre())
	if y := m.Year(); y > 0 {
		add("year", strconv.Itoa(y))
	}
	add("track", ordinal(m.Track()))
	add("disc", ordinal(m.Disc()))
	add("tag_format", string(m.Format()))
	add("file_type", string(m.FileType()))
	return facts
}

// ordinal renders "n/total", or just "n" when the total is unknown.
func ordinal(n, total int) string {
	if n <= 0 {
		return ""
	}
	if total <= 0 {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(n) + "/" + strconv.Itoa(total)
}
