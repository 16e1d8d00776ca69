package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"media-catalog/internal/catalog"
)

// Zip record layouts (APPNOTE 4.3.12, 4.3.14, 4.3.15, 4.3.16).
const (
	sigDirectoryHeader = 0x02014b50
	sigDirectoryEnd    = 0x06054b50
	sigDirectory64End  = 0x06064b50
	sigDirectory64Loc  = 0x07064b50

	directoryHeaderLen = 46
	directoryEndLen    = 22
	directory64LocLen  = 20
	directory64EndLen  = 56
	maxCommentLen      = 0xFFFF

	zip64ExtraID = 0x0001
	utf8NameFlag = 0x800
)

// centralDirectory is the part of the end-of-central-directory record the
// salvage reader trusts: where the directory starts. The entry count is kept
// only to report how far the declared count was from the readable one.
type centralDirectory struct {
	offset   int64
	declared uint64
}

// salvageZip lists a zip that archive/zip refused to open, typically because
// the end record declares more entries than the directory holds. It reads
// directory headers one by one from the recorded offset and stops at the
// first record that does not parse, so the result is always a partial
// listing. cause is the error the regular reader returned.
func (in *Inspector) salvageZip(ctx context.Context, f *os.File, w *walk, cause error) (*catalog.ArchiveListing, error) {
	const op = "list archive"
	path := w.listing.ArchivePath

	info, err := f.Stat()
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, op, path, err)
	}
	dir, err := findCentralDirectory(f, info.Size())
	if err != nil {
		in.log.Debug("No usable end record in %s: %v", path, err)
		return nil, catalog.NewError(catalog.KindUnsupportedFormat, op, path, cause)
	}

	in.log.Debug("Salvaging %s from its central directory at %d (declared %d entries): %v", path, dir.offset, dir.declared, cause)
	r := bufio.NewReader(io.NewSectionReader(f, dir.offset, info.Size()-dir.offset))

	var read uint64
	var walkErr error
	for {
		if read%256 == 0 && ctx.Err() != nil {
			walkErr = ctx.Err()
			break
		}
		h, ok, err := in.readDirectoryHeader(r)
		if err != nil || !ok {
			break
		}
		read++
		if walkErr = w.add(h); walkErr != nil {
			break
		}
	}

	listing := w.listing
	switch {
	case errors.Is(walkErr, errStopWalk):
		return listing, catalog.Errorf(catalog.KindResourceLimit, op, path, "%s", w.limitReason)
	case walkErr != nil:
		listing.Truncated = true
		return listing, catalog.Errorf(catalog.KindIO, op, path, "listing interrupted after %d headers: %w", w.seen, walkErr)
	case read == 0:
		return nil, catalog.NewError(catalog.KindUnsupportedFormat, op, path, cause)
	case read < dir.declared:
		listing.Truncated = true
		reason := fmt.Sprintf("central directory declares %d entries, %d readable", dir.declared, read)
		w.warn("listing truncated: %s", reason)
		return listing, catalog.Errorf(catalog.KindResourceLimit, op, path, "%s", reason)
	default:
		w.warn("read %d entries despite: %v", read, cause)
		return listing, nil
	}
}

// findCentralDirectory locates the end record in the trailing comment window
// and follows the zip64 locator when the 32-bit fields are saturated.
func findCentralDirectory(r io.ReaderAt, size int64) (centralDirectory, error) {
	window := int64(directoryEndLen + maxCommentLen)
	if window > size {
		window = size
	}
	if window < directoryEndLen {
		return centralDirectory{}, errors.New("file too small for an end record")
	}
	buf := make([]byte, window)
	if _, err := r.ReadAt(buf, size-window); err != nil && !errors.Is(err, io.EOF) {
		return centralDirectory{}, err
	}

	sig := binary.LittleEndian.AppendUint32(nil, sigDirectoryEnd)
	at := bytes.LastIndex(buf[:len(buf)-directoryEndLen+len(sig)], sig)
	if at < 0 {
		return centralDirectory{}, errors.New("end of central directory not found")
	}
	end := buf[at : at+directoryEndLen]
	dir := centralDirectory{
		declared: uint64(binary.LittleEndian.Uint16(end[10:12])),
		offset:   int64(binary.LittleEndian.Uint32(end[16:20])),
	}

	endPos := size - window + int64(at)
	if (dir.offset == 0xFFFFFFFF || dir.declared == 0xFFFF) && endPos >= directory64LocLen {
		if d64, err := readDirectory64End(r, endPos-directory64LocLen); err == nil {
			dir = d64
		}
	}
	if dir.offset < 0 || dir.offset >= size {
		return centralDirectory{}, fmt.Errorf("central directory offset %d outside file", dir.offset)
	}
	return dir, nil
}

func readDirectory64End(r io.ReaderAt, locPos int64) (centralDirectory, error) {
	loc := make([]byte, directory64LocLen)
	if _, err := r.ReadAt(loc, locPos); err != nil {
		return centralDirectory{}, err
	}
	if binary.LittleEndian.Uint32(loc[0:4]) != sigDirectory64Loc {
		return centralDirectory{}, errors.New("no zip64 locator")
	}
	endPos := binary.LittleEndian.Uint64(loc[8:16])
	if endPos > uint64(locPos) {
		return centralDirectory{}, errors.New("zip64 end record offset outside file")
	}

	end := make([]byte, directory64EndLen)
	if _, err := r.ReadAt(end, int64(endPos)); err != nil {
		return centralDirectory{}, err
	}
	if binary.LittleEndian.Uint32(end[0:4]) != sigDirectory64End {
		return centralDirectory{}, errors.New("bad zip64 end record")
	}
	offset := binary.LittleEndian.Uint64(end[48:56])
	if offset > uint64(locPos) {
		return centralDirectory{}, errors.New("zip64 directory offset outside file")
	}
	return centralDirectory{
		declared: binary.LittleEndian.Uint64(end[32:40]),
		offset:   int64(offset),
	}, nil
}

// readDirectoryHeader reads one central directory file header. ok is false
// when the next record is not a file header, which ends the directory.
func (in *Inspector) readDirectoryHeader(r *bufio.Reader) (header, bool, error) {
	var fixed [directoryHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return header{}, false, err
	}
	if binary.LittleEndian.Uint32(fixed[0:4]) != sigDirectoryHeader {
		return header{}, false, nil
	}

	flags := binary.LittleEndian.Uint16(fixed[8:10])
	size := uint64(binary.LittleEndian.Uint32(fixed[24:28]))
	nameLen := int(binary.LittleEndian.Uint16(fixed[28:30]))
	extraLen := int(binary.LittleEndian.Uint16(fixed[30:32]))
	commentLen := int(binary.LittleEndian.Uint16(fixed[32:34]))

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return header{}, false, err
	}
	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return header{}, false, err
	}
	if _, err := r.Discard(commentLen); err != nil {
		return header{}, false, err
	}

	if size == 0xFFFFFFFF {
		if s, ok := zip64Size(extra); ok {
			size = s
		}
	}
	declared := int64(size)
	if size > uint64(1<<63-1) {
		declared = -1
	}

	n := string(name)
	if flags&utf8NameFlag == 0 && in.cfg.NameEncoding != nil {
		if decoded, err := in.cfg.NameEncoding.NewDecoder().String(n); err == nil {
			n = decoded
		}
	}
	return header{
		name:  n,
		isDir: strings.HasSuffix(n, "/") || strings.HasSuffix(n, `\`),
		size:  declared,
	}, true, nil
}

// zip64Size returns the uncompressed size from a zip64 extended information
// field. It is the first value of the field when present.
func zip64Size(extra []byte) (uint64, bool) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		n := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if n > len(extra) {
			return 0, false
		}
		if id == zip64ExtraID && n >= 8 {
			return binary.LittleEndian.Uint64(extra[0:8]), true
		}
		extra = extra[n:]
	}
	return 0, false
}
