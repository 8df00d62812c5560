package edge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAddresses means a body was fetched but held no valid edge address.
	ErrNoAddresses = errors.New("no edge addresses")
	// ErrEmptyBody means the server answered with an empty body.
	ErrEmptyBody = errors.New("empty response body")
)

// TransportError is a failed request or a non-2xx answer for one URL.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a parser strategy that could not decode a body.
// It is never fatal: the next strategy is tried.
type ParseError struct {
	URL    string
	Parser string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s as %s: %v", e.URL, e.Parser, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchError is returned when no candidate URL produced an address.
type FetchError struct {
	Attempts int
	Last     error
	Preview  string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch edge addresses from %d sources: last error: %v; preview=%q", e.Attempts, e.Last, e.Preview)
}

func (e *FetchError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrNoAddresses}
	}
	return []error{ErrNoAddresses, e.Last}
}
