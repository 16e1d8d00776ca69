/*
Package archive lists the contents of archive files without extracting them.

The Inspector identifies the container format (zip, tar and its gzip, bzip2,
xz and zstd variants, 7z, rar) from the file's magic bytes and walks the
entry headers. Entry payloads are never opened, so a listing costs the same
whether an archive declares kilobytes or petabytes.

# Safety

Every listing is bounded by Limits:

  - MaxEntries caps the number of headers read, including dropped ones.
  - MaxTotalSize caps the sum of declared entry sizes. Size arithmetic cannot
    overflow; negative sizes count as maximal.
  - MaxEntrySize marks larger entries as suspicious without rejecting them.
  - MaxNestingDepth marks nested archives beyond that depth as depth limited.

When a cap would be exceeded the walk stops and the partial listing is
returned, marked truncated, with a ResourceLimitExceeded error.

Entry names are normalized to slash-separated relative paths. Names that are
absolute, carry a drive letter or UNC prefix, contain NUL bytes, or climb out
of the archive root are dropped and counted; so are links whose targets
escape. The archive itself must live under the configured allowed root.

# Usage

	in, err := archive.NewInspector(archive.Config{
	    Limits:      archive.DefaultLimits(),
	    AllowedRoot: "/media",
	    Timeout:     30 * time.Second,
	})
	listing, err := in.List(ctx, "/media/backups/photos.tar.gz")
	if errors.Is(err, catalog.ErrResourceLimit) {
	    // listing holds the entries read before the cap
	}
*/
package archive
