package router

import (
	"errors"
	"fmt"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/repo"
)

// Class categorizes handler failures.
type Class string

const (
	// ExtractionFailure is an undecodable artifact. Reported inline, never
	// fatal.
	ExtractionFailure Class = "extraction"
	// VcsFailure is a failed add, commit or remove.
	VcsFailure Class = "vcs"
	// PersistenceFailure is a failed ownership or side-table write.
	PersistenceFailure Class = "persistence"
	// AuthorizationFailure is a moderation action by a member without
	// rights. No state changes.
	AuthorizationFailure Class = "authorization"
	// PlatformFailure is a failed chat platform call the handler needed.
	PlatformFailure Class = "platform"
)

// HandlerError is a failed event handler.
type HandlerError struct {
	Class Class
	// Op names the step that failed, e.g. "add" or "post reply".
	Op         string
	Repo       string
	ArtifactID string
	Err        error
}

func (e *HandlerError) Error() string {
	msg := fmt.Sprintf("%s failure: %s", e.Class, e.Op)
	if e.Repo != "" && e.ArtifactID != "" {
		msg += fmt.Sprintf(" (repo=%s, artifact=%s)", e.Repo, e.ArtifactID)
	} else if e.Repo != "" {
		msg += fmt.Sprintf(" (repo=%s)", e.Repo)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ClassOf returns the class of err, or "" when err is not a HandlerError.
func ClassOf(err error) Class {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Class
	}
	return ""
}

// IsExtractionFailure reports whether err is an extraction failure.
func IsExtractionFailure(err error) bool { return ClassOf(err) == ExtractionFailure }

// IsVcsFailure reports whether err is a version-control failure.
func IsVcsFailure(err error) bool { return ClassOf(err) == VcsFailure }

// IsPersistenceFailure reports whether err is a persistence failure.
func IsPersistenceFailure(err error) bool { return ClassOf(err) == PersistenceFailure }

// IsAuthorizationFailure reports whether err is an authorization failure.
func IsAuthorizationFailure(err error) bool { return ClassOf(err) == AuthorizationFailure }

// repoFailure classifies an error returned by a repo operation.
func repoFailure(op, repoName string, id artifact.ID, err error) *HandlerError {
	class := PersistenceFailure
	switch repo.KindOf(err) {
	case repo.KindVCS:
		class = VcsFailure
	case repo.KindCodec:
		class = ExtractionFailure
	}
	return &HandlerError{Class: class, Op: op, Repo: repoName, ArtifactID: id.Hex(), Err: err}
}
