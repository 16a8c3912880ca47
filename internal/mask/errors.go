package mask

import "errors"

// ErrEmptyMask is returned when the mask body is empty.
var ErrEmptyMask = errors.New("mask: empty body")

// ErrUnterminatedMask is returned when no matching closing delimiter is found.
var ErrUnterminatedMask = errors.New("mask: unterminated delimiter")

// ErrInvalidDelimiter is returned when the leading character is not one of
// the supported delimiters (/, ", ', %).
var ErrInvalidDelimiter = errors.New("mask: invalid delimiter")

// RegexError wraps a compile failure from the underlying regex engine.
type RegexError struct {
	Err error
}

func (e *RegexError) Error() string { return "mask: regex error: " + e.Err.Error() }
func (e *RegexError) Unwrap() error { return e.Err }
