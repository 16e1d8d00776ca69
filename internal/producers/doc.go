/*
Package producers extracts facts about individual files.

Every extractor satisfies Producer and tags what it returns with its
SourceType and the path it read. The Registry maps each category to an
ordered list of producers and the Runner invokes them with a per-call
timeout, turning panics, timeouts and missing tools into ProducerErrors
that surface as producer_error facts instead of stopping the scan.

Built-in producers:

  - Filename: name, stem, extension, folder, size, mtime, category, MIME type
  - MediaProbe: ffprobe container and stream metadata
  - ImageExif: header dimensions and EXIF tags
  - AudioTag: ID3, MP4, FLAC and Ogg tags
  - SidecarText: subtitle dialogue and note or metadata excerpts
  - ArchiveListing: a bounded archive listing, one entry fact per member
*/
package producers
