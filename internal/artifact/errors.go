package artifact

import (
	"errors"
	"fmt"
)

// ErrNoArtifact is returned when input does not look like an artifact at
// all. It is a normal outcome for ordinary chat text.
var ErrNoArtifact = errors.New("no artifact found")

// DecodeErrorKind classifies why bytes could not be decoded.
type DecodeErrorKind string

const (
	HeaderInvalid      DecodeErrorKind = "header_invalid"
	UnsupportedVersion DecodeErrorKind = "unsupported_version"
	Truncated          DecodeErrorKind = "truncated"
	MissingReference   DecodeErrorKind = "missing_reference"
	CorruptState       DecodeErrorKind = "corrupt_state"
)

// DecodeError reports a failed decode.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Diagnostic is the short user-facing explanation posted back to chat.
func (e *DecodeError) Diagnostic() string {
	switch e.Kind {
	case HeaderInvalid:
		return "that is not a schematic (bad header)."
	case UnsupportedVersion:
		return fmt.Sprintf("unsupported version: `%s`.", e.Detail)
	case Truncated:
		return "schematic data ends early. was it cut off while copying?"
	case MissingReference:
		return fmt.Sprintf("schematic references an unknown block: %s.", e.Detail)
	default:
		return "schematic data is corrupt."
	}
}

func decodeErr(kind DecodeErrorKind, detail string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Detail: detail, Err: err}
}

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// KindOf returns the decode error kind, or "" when err is not a DecodeError.
func KindOf(err error) DecodeErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
