// Package mediatypes classifies catalog files by extension.
//
// This package exists as a dependency-free foundation that can be imported by
// other packages without creating import cycles.
//
// # Categories
//
// Every file is assigned exactly one Category from a fixed lookup table:
//
//	mediatypes.CategoryVideo    // mp4, mkv, avi, ...
//	mediatypes.CategoryImage    // jpg, png, webp, ...
//	mediatypes.CategoryAudio    // mp3, flac, m4a, ...
//	mediatypes.CategoryArchive  // zip, tar, tar.gz, 7z, rar, ...
//	mediatypes.CategorySubtitle // srt, vtt, ass
//	mediatypes.CategoryNote     // txt, md
//	mediatypes.CategoryMeta     // nfo, json, xml
//	mediatypes.CategoryUnknown  // anything else
//
// Subtitle, note and meta files are sidecars: they attach to the primary file
// sharing their base name.
//
// # Overrides
//
// The table can be extended or remapped from configuration:
//
//	table, rejected := mediatypes.NewTable(map[string]string{".m2ts": "video"})
//	cat := table.CategoryOf("clip.M2TS") // CategoryVideo
//
// The lookup is deterministic: the same extension always maps to the same
// category for the lifetime of a Table.
package mediatypes
