package domain

import (
	"errors"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the job store
	ErrJobNotFound = errors.New("job not found")

	// ErrArtifactNotFound is returned when an object or archive does not exist
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrConditionFailed is returned when a conditional update's precondition does not hold
	ErrConditionFailed = errors.New("conditional update rejected")

	// ErrMalformedMessage is returned when a message body is not valid JSON or lacks a field
	ErrMalformedMessage = errors.New("malformed message")

	// ErrMissingAttachment is returned when an upload key carries no file name
	ErrMissingAttachment = errors.New("missing attachment")

	// ErrInsufficientCapacity is returned when the expedited retrieval tier is exhausted
	ErrInsufficientCapacity = errors.New("insufficient retrieval capacity")

	// ErrResultsMissing is returned when the annotation produced no result or log file
	ErrResultsMissing = errors.New("annotation results missing")
)

// ErrorKind is the closed set of failure classes the pipeline reacts to
type ErrorKind int

const (
	// KindTransient covers infrastructure errors; the unit of work is left for redelivery
	KindTransient ErrorKind = iota
	// KindMalformed covers bad JSON and missing fields; the message is skipped
	KindMalformed
	// KindNotFound covers missing artifacts and job records; terminal for the unit of work
	KindNotFound
	// KindCapacity covers retrieval-tier exhaustion; has one fallback path
	KindCapacity
	// KindConditionFailed signals duplicate or stale processing, not a failure
	KindConditionFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindConditionFailed:
		return "condition_failed"
	default:
		return "transient"
	}
}

// KindOf classifies err. Unknown errors are transient.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrMissingAttachment):
		return KindMalformed
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrArtifactNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientCapacity):
		return KindCapacity
	case errors.Is(err, ErrConditionFailed):
		return KindConditionFailed
	default:
		return KindTransient
	}
}

// IsPermanent reports whether retrying the same message cannot succeed
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindMalformed, KindNotFound:
		return true
	}
	return false
}
