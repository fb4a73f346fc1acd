package engine

import "errors"

// Sentinel errors surfaced as programming errors (spec error-kind (c)):
// invariant violations are never swallowed silently.
var (
	ErrUnknownJobType        = errors.New("engine: unknown job type")
	ErrJobRenameNotSupported = errors.New("engine: job rename not supported")
	ErrNotLeader             = errors.New("engine: not leader")
	ErrInvalidTaskID         = errors.New("engine: invalid task id")
)
