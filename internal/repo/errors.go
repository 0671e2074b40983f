package repo

import (
	"errors"
	"fmt"
)

// ErrExists is returned by Add and Import when the artifact is already
// stored.
var ErrExists = errors.New("artifact already stored")

// Kind classifies repository failures for the caller's error taxonomy.
type Kind string

const (
	// KindVCS is a failed version-control invocation.
	KindVCS Kind = "vcs"
	// KindPersistence is a failed file or ownership index write.
	KindPersistence Kind = "persistence"
	// KindCodec is an artifact that failed to encode or decode.
	KindCodec Kind = "codec"
)

// Error is a failed repository operation.
type Error struct {
	Kind Kind
	Op   string
	Repo string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s in %s: %v", e.Op, e.Path, e.Repo, e.Err)
	}
	return fmt.Sprintf("%s in %s: %v", e.Op, e.Repo, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
