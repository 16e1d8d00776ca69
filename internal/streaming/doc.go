/*
Package streaming writes long JSON Lines responses with timeout protection.

Exporting a large index can take minutes, and a stalled or vanished client
must not hold a database cursor open for that long. LineWriter wraps an
http.ResponseWriter and aborts the stream when:

  - a single write blocks past WriteTimeout (slow reader)
  - no line is produced for IdleTimeout (stalled producer)
  - the whole stream runs past MaxDuration
  - the request context is canceled (client gone)

Producers should watch LineWriter.Context, which is canceled in all of
these cases, and stop early:

	lw := streaming.NewLineWriter(r.Context(), w, streaming.DefaultConfig())
	defer lw.Close()

	err := db.ExportUnits(lw.Context(), "", func(u catalog.CorpusUnit) error {
		return lw.Encode(&u)
	})
	if errors.Is(err, streaming.ErrClientGone) {
		return
	}

Lines are flushed every FlushLines values so clients see progress while
the export runs. Write deadlines are applied through
http.ResponseController, so middleware wrapping the ResponseWriter must
implement Unwrap for them to take effect.
*/
package streaming
