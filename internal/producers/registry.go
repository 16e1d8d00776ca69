package producers

import (
	"media-catalog/internal/archive"
	"media-catalog/internal/mediatypes"
)

// Options configures DefaultRegistry.
type Options struct {
	FFprobePath string
	Inspector   *archive.Inspector
	Text        SidecarTextConfig
}

// DefaultRegistry wires the built-in producers. Filename runs first for
// every category; archive listing is registered only when an Inspector is set.
func DefaultRegistry(opts Options) (*Registry, error) {
	r := NewRegistry()
	r.RegisterAll(&Filename{})

	probe := NewMediaProbe(opts.FFprobePath)
	r.Register(mediatypes.CategoryVideo, probe)
	r.Register(mediatypes.CategoryAudio, &AudioTag{})
	r.Register(mediatypes.CategoryAudio, probe)
	r.Register(mediatypes.CategoryImage, NewImageExif())

	if opts.Inspector != nil {
		r.Register(mediatypes.CategoryArchive, NewArchiveListing(opts.Inspector))
	}

	sidecars, err := sidecarProducers(opts.Text)
	if err != nil {
		return nil, err
	}
	for _, cat := range mediatypes.AllCategories {
		if p, ok := sidecars[cat]; ok {
			r.Register(cat, p)
		}
	}
	return r, nil
}
