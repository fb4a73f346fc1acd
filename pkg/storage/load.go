package storage

import (
	"fmt"

	"github.com/cuemby/schedulerd/pkg/types"
)

// LoadTasks replays every pending task recorded in store through restore,
// in no particular order — callers must call this before LoadJobs so that a
// job's hydrated task count is already accounted for by the time jobs start
// being re-registered.
func LoadTasks(store Store, restore func(*types.ScheduledTask) error) error {
	tasks, err := store.ListPendingTasks()
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for _, task := range tasks {
		if err := restore(task); err != nil {
			return fmt.Errorf("restore pending task %s: %w", task.ID, err)
		}
	}
	return nil
}

// LoadJobs replays every saved job through restore. Must run after LoadTasks.
func LoadJobs(store Store, restore func(*types.Job) error) error {
	jobs, err := store.ListJobs()
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	for _, job := range jobs {
		if err := restore(job); err != nil {
			return fmt.Errorf("restore job %s: %w", job.Name, err)
		}
	}
	return nil
}
