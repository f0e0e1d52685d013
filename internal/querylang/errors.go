package querylang

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery         = errors.New("empty query")
	ErrExpectedField      = errors.New("expected field name")
	ErrExpectedOperator   = errors.New("expected operator")
	ErrExpectedValue      = errors.New("expected value")
	ErrUnterminatedString = errors.New("unterminated string")
	ErrUnknownStage       = errors.New("unrecognized stage")
	ErrTrailingStage      = errors.New("stage after aggregation")
	ErrBadAggregation     = errors.New("malformed aggregation")
	ErrInvalidRegex       = errors.New("invalid regex")
	ErrUnknownFormat      = errors.New("unknown format")
	ErrUnknownOperator    = errors.New("unknown operator")
)

// ParseError provides detailed error information including the byte offset
// in the input and the pipe stage being parsed.
type ParseError struct {
	Pos     int    // byte offset in input
	Stage   int    // zero-based pipe stage index
	Message string // human-readable error message
	Err     error  // underlying sentinel error (for errors.Is)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in stage %d at position %d: %s", e.Stage, e.Pos, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// newParseError creates a ParseError with the given position and sentinel error.
func newParseError(pos, stage int, err error, msgFmt string, args ...any) *ParseError {
	return &ParseError{
		Pos:     pos,
		Stage:   stage,
		Message: fmt.Sprintf(msgFmt, args...),
		Err:     err,
	}
}
