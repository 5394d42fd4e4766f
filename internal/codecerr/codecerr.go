// Package codecerr defines the error taxonomy shared by the decoders and the
// image manipulation layer.
//
// Every failure carries a Kind plus enough context (byte offset, chunk or
// marker name, MCU/block index) to diagnose the input without re-parsing it.
// Callers classify errors with errors.Is against the sentinel values:
//
//	if errors.Is(err, codecerr.ErrUnsupported) {
//	    // fall back to another decoder
//	}
package codecerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a decode or manipulation failure.
type Kind int

const (
	// MalformedHeader covers bad signatures and invalid header fields.
	MalformedHeader Kind = iota + 1
	// UnsupportedFeature is a valid stream using something this codec does not implement.
	UnsupportedFeature
	// TruncatedStream means the input ended before the decoder was done.
	TruncatedStream
	// CorruptData covers bad entropy codes, inflate failures and CRC mismatches.
	CorruptData
	// ResourceLimitExceeded means declared dimensions exceed the allocation ceiling.
	ResourceLimitExceeded
	// InvalidArgument is a validation failure of a manipulation operation.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed header"
	case UnsupportedFeature:
		return "unsupported feature"
	case TruncatedStream:
		return "truncated stream"
	case CorruptData:
		return "corrupt data"
	case ResourceLimitExceeded:
		return "resource limit exceeded"
	case InvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrMalformed   = &sentinel{MalformedHeader}
	ErrUnsupported = &sentinel{UnsupportedFeature}
	ErrTruncated   = &sentinel{TruncatedStream}
	ErrCorrupt     = &sentinel{CorruptData}
	ErrLimit       = &sentinel{ResourceLimitExceeded}
	ErrInvalidArg  = &sentinel{InvalidArgument}
)

type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return s.kind.String() }

// NoOffset marks an Error that is not tied to a byte position.
const NoOffset = -1

// Error is the concrete error returned by every package in this module.
type Error struct {
	Kind   Kind
	Format string // "jpeg", "png", "image", ...
	Offset int    // byte offset into the input, or NoOffset
	Where  string // marker, chunk, MCU/block or operation name
	Msg    string
	Err    error // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Format != "" {
		b.WriteString(e.Format)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Where != "" {
		b.WriteString(" in ")
		b.WriteString(e.Where)
	}
	if e.Offset != NoOffset {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.kind == e.Kind
}

// New builds an Error with a formatted message.
func New(kind Kind, format string, offset int, where, msg string, args ...interface{}) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Kind: kind, Format: format, Offset: offset, Where: where, Msg: msg}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, format string, offset int, where string, err error) *Error {
	return &Error{Kind: kind, Format: format, Offset: offset, Where: where, Err: err}
}

// Invalid is shorthand for an InvalidArgument error raised by an image operation.
func Invalid(op, msg string, args ...interface{}) *Error {
	return New(InvalidArgument, "image", NoOffset, op, msg, args...)
}

// KindOf returns the Kind of err, or 0 if err is not a codec error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var s *sentinel
	if errors.As(err, &s) {
		return s.kind
	}
	return 0
}
