package downloader

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so the HTTP layer can pick a status code
// without inspecting the wrapped cause.
type Kind int

const (
	KindUnknown Kind = iota
	KindClientInput
	KindToolExecution
	KindDataParse
	KindMerge
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindToolExecution:
		return "tool_execution"
	case KindDataParse:
		return "data_parse"
	case KindMerge:
		return "merge"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrNoOutput        = errors.New("no output file detected")
	ErrNoThumbnail     = errors.New("no thumbnails available")
	ErrUnsupportedType = errors.New("unsupported format")
)

// Error is returned by every exported operation of this package. Message is
// safe to show to clients; Err holds the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf reports the Kind of err, or KindUnknown if err was not produced by
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
