package youtube

import "fmt"

type FetchErrorKind int

const (
	FetchNetwork FetchErrorKind = iota
	FetchHTTPStatus
)

// FetchError is returned by Source.Fetch when the feed could not be retrieved.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	return fmt.Sprintf("execute request: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the response body is not a syndication document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
