package profile

import "errors"

// ErrEmptyQuery is returned when the query key is missing or blank.
var ErrEmptyQuery = errors.New("query key is empty")

// NotFoundError is the normal no-match outcome. Message is safe to show to
// the caller.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// AmbiguousError reports that a phone or name search matched more than one
// customer and the caller must pick a customer code.
type AmbiguousError struct {
	Message string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	return e.Message
}
