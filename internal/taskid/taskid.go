// Package taskid encodes and parses the scheduler's task-id, the sole key
// used throughout the task lifecycle.
//
// Format: version:job-name:due-instant-millis:attempt
//
// The version prefix lets a dedicated validator reject ids produced by an
// older, incompatible layout rather than silently misparsing them.
package taskid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Version is the current task-id layout version. Bump it, and reject older
// versions in Validate, whenever the field order or count changes.
const Version = "v1"

// ID is the parsed form of a task-id.
type ID struct {
	Version string
	JobName string
	Due     time.Time
	Attempt int
}

// New builds a task-id string for the given job, due instant, and attempt.
func New(jobName string, due time.Time, attempt int) string {
	return fmt.Sprintf("%s:%s:%d:%d", Version, jobName, due.UnixMilli(), attempt)
}

// Parse decodes a task-id into its components. It returns false on any
// syntactic failure or version mismatch; callers must drop the task rather
// than treat this as fatal (spec §7(b)).
func Parse(id string) (ID, bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		return ID{}, false
	}
	version, jobName, dueMillisStr, attemptStr := parts[0], parts[1], parts[2], parts[3]
	if version != Version {
		return ID{}, false
	}
	if jobName == "" {
		return ID{}, false
	}
	dueMillis, err := strconv.ParseInt(dueMillisStr, 10, 64)
	if err != nil {
		return ID{}, false
	}
	attempt, err := strconv.Atoi(attemptStr)
	if err != nil || attempt < 0 {
		return ID{}, false
	}
	return ID{
		Version: version,
		JobName: jobName,
		Due:     time.UnixMilli(dueMillis).UTC(),
		Attempt: attempt,
	}, true
}

// Validate reports whether id is a well-formed, current-version task-id.
func Validate(id string) bool {
	_, ok := Parse(id)
	return ok
}
