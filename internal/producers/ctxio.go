package producers

import (
	"context"
	"io"
	"os"
)

// contextFile fails every read once ctx is done. Producers read through it
// so a call the Runner abandoned after a timeout stops at its next read
// instead of finishing in the background.
type contextFile struct {
	ctx context.Context
	f   *os.File
}

func newContextFile(ctx context.Context, f *os.File) *contextFile {
	return &contextFile{ctx: ctx, f: f}
}

func (c *contextFile) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.f.Read(p)
}

func (c *contextFile) ReadAt(p []byte, off int64) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.f.ReadAt(p, off)
}

func (c *contextFile) Seek(offset int64, whence int) (int64, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.f.Seek(offset, whence)
}

var (
	_ io.ReadSeeker = (*contextFile)(nil)
	_ io.ReaderAt   = (*contextFile)(nil)
)
