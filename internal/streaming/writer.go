package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"media-catalog/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a single write exceeded WriteTimeout,
	// typically because the client reads too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrIdleTimeout indicates that no line was written for IdleTimeout.
	ErrIdleTimeout = errors.New("stream idle timeout exceeded")

	// ErrMaxDuration indicates that the stream ran longer than MaxDuration.
	ErrMaxDuration = errors.New("stream exceeded maximum duration")

	// ErrClientGone indicates that the request context was canceled,
	// usually because the client disconnected.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates a write after Close.
	ErrStreamCanceled = errors.New("stream canceled")
)

// Config configures a LineWriter.
type Config struct {
	// WriteTimeout bounds a single write to the connection.
	WriteTimeout time.Duration
	// IdleTimeout bounds the time between two lines (0 = unlimited).
	IdleTimeout time.Duration
	// MaxDuration bounds the whole stream (0 = unlimited).
	MaxDuration time.Duration
	// FlushLines is how many lines are buffered before a flush.
	FlushLines int
}

// DefaultConfig returns the export defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		FlushLines:   100,
	}
}

// Stats summarizes a finished stream.
type Stats struct {
	Lines    int64
	Bytes    int64
	Duration time.Duration
}

// LineWriter streams JSON values to an HTTP response, one per line, with
// per-write, idle and overall deadlines. It is not safe for concurrent use.
type LineWriter struct {
	rc      *http.ResponseController
	out     io.Writer
	enc     *json.Encoder
	ctx     context.Context
	cancel  context.CancelCauseFunc
	stop    context.CancelFunc
	idle    *time.Timer
	config  Config
	start   time.Time
	stats   Stats
	pending int
	closed  bool
}

// NewLineWriter wraps w. Work feeding the writer should use Context, which
// is canceled as soon as the stream is abandoned for any reason.
func NewLineWriter(ctx context.Context, w http.ResponseWriter, config Config) *LineWriter {
	if config.FlushLines < 1 {
		config.FlushLines = 1
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	stop := context.CancelFunc(func() {})
	if config.MaxDuration > 0 {
		streamCtx, stop = context.WithTimeoutCause(streamCtx, config.MaxDuration, ErrMaxDuration)
	}

	lw := &LineWriter{
		rc:     http.NewResponseController(w),
		out:    w,
		ctx:    streamCtx,
		cancel: cancel,
		stop:   stop,
		config: config,
		start:  time.Now(),
	}
	lw.enc = json.NewEncoder(countingWriter{lw})
	lw.enc.SetEscapeHTML(false)

	if config.IdleTimeout > 0 {
		lw.idle = time.AfterFunc(config.IdleTimeout, func() {
			logging.Warn("Stream idle for %v, aborting", config.IdleTimeout)
			cancel(ErrIdleTimeout)
		})
	}
	return lw
}

// Context is canceled when the client goes away or a deadline passes.
func (lw *LineWriter) Context() context.Context {
	return lw.ctx
}

// Encode writes v as one JSON line.
func (lw *LineWriter) Encode(v interface{}) error {
	if lw.closed {
		return ErrStreamCanceled
	}
	if err := lw.err(); err != nil {
		return err
	}

	if lw.config.WriteTimeout > 0 {
		if err := lw.rc.SetWriteDeadline(time.Now().Add(lw.config.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if err := lw.enc.Encode(v); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			lw.cancel(ErrWriteTimeout)
			return ErrWriteTimeout
		}
		lw.cancel(err)
		return err
	}

	lw.stats.Lines++
	if lw.idle != nil {
		lw.idle.Reset(lw.config.IdleTimeout)
	}
	lw.pending++
	if lw.pending >= lw.config.FlushLines {
		return lw.flush()
	}
	return nil
}

func (lw *LineWriter) flush() error {
	lw.pending = 0
	if err := lw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// err maps the stream context's cancellation cause to a sentinel.
func (lw *LineWriter) err() error {
	if lw.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(lw.ctx)
	switch {
	case errors.Is(cause, ErrIdleTimeout), errors.Is(cause, ErrMaxDuration), errors.Is(cause, ErrWriteTimeout):
		return cause
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return ErrClientGone
	default:
		return cause
	}
}

// Close flushes buffered lines and releases the deadlines. It is safe to
// call more than once.
func (lw *LineWriter) Close() error {
	if lw.closed {
		return nil
	}
	lw.closed = true
	if lw.idle != nil {
		lw.idle.Stop()
	}
	var err error
	if lw.pending > 0 && lw.ctx.Err() == nil {
		err = lw.flush()
	}
	lw.stop()
	lw.cancel(ErrStreamCanceled)
	lw.stats.Duration = time.Since(lw.start)
	return err
}

// Stats returns what has been written so far.
func (lw *LineWriter) Stats() Stats {
	s := lw.stats
	if !lw.closed {
		s.Duration = time.Since(lw.start)
	}
	return s
}

type countingWriter struct {
	lw *LineWriter
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.lw.out.Write(p)
	c.lw.stats.Bytes += int64(n)
	return n, err
}
