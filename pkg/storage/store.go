package storage

import (
	"github.com/cuemby/schedulerd/pkg/types"
)

// Replication op names, shared between whatever calls Lifecycle.Apply
// (pkg/engine, pkg/taskqueue) and pkg/leader's FSM, which switches on them
// to decide which Store method a committed log entry maps to.
const (
	OpSaveJob    = "save_job"
	OpRemoveJob  = "remove_job"
	OpSaveTask   = "save_task"
	OpRemoveTask = "remove_task"
)

// Store defines durable persistence for jobs and pending tasks.
// It is implemented by BoltStore; the engine never talks to BoltDB directly.
type Store interface {
	// Jobs
	SaveJob(job *types.Job) error
	GetJob(name string) (*types.Job, error)
	ListJobs() ([]*types.Job, error)
	RemoveJob(name string) error

	// Pending tasks. These are the scheduler's own durable record of
	// outstanding tasks, independent of whatever the resource-manager
	// driver tracks, and are what LoadTasks replays on startup.
	SavePendingTask(task *types.ScheduledTask) error
	GetPendingTask(id string) (*types.ScheduledTask, error)
	ListPendingTasks() ([]*types.ScheduledTask, error)
	RemovePendingTask(id string) error

	Close() error
}
