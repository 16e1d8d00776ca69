/*
Package corpus converts assembled records into provenance-tagged units ready
for indexing or embedding.

Each unit names the file its content came from (Path), the record it belongs
to (PrimaryPath) and the extractor that produced it (SourceType). Structured
facts are grouped into one "fields" unit per file and source type; long text
such as subtitle dialogue, note excerpts and archive listings is split into
overlapping "text" units by Chunk.
*/
package corpus
