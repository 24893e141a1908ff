package project

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for a bad data location or layout. Never retried.
	ErrConfig = errors.New("configuration error")
	// ErrSourceFetch is returned when a lab data source could not be read.
	ErrSourceFetch = errors.New("source fetch failed")
	// ErrDataIntegrity is returned for data that must never be auto-resolved,
	// e.g. a record without orderer or duplicate Project Progress reports.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrRemoteServiceUpload marks a report upload answered with a non-2xx status.
	ErrRemoteServiceUpload = errors.New("report upload rejected")
)

// SourceFetchError wraps a failure of one named source.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Source, e.Err)
}

// Unwrap lets errors.Is match both ErrSourceFetch and the underlying cause.
func (e *SourceFetchError) Unwrap() []error {
	return []error{ErrSourceFetch, e.Err}
}
