// Package catalog defines the shared domain model of the media catalog:
// file records, provenance-tagged facts, archive listings, assembled records
// and corpus units, along with the typed error taxonomy used across the
// pipeline.
//
// # Errors
//
// Every failure raised by the pipeline is a *Error carrying a Kind. Callers
// test for a kind with errors.Is against the kind sentinels:
//
//	if errors.Is(err, catalog.ErrResourceLimit) {
//	    // partial listing was returned
//	}
//
// A Summary aggregates failures by kind over one scan pass.
package catalog
