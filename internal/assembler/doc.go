// Package assembler links sidecar files to their primary and merges the
// facts gathered about them into one immutable catalog.AssembledRecord.
package assembler
