package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/schedulerd/pkg/types"
)

func TestLoadTasksReplaysEveryPendingTask(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SavePendingTask(&types.ScheduledTask{ID: "v1:a:1:0", JobName: "a"}))
	require.NoError(t, store.SavePendingTask(&types.ScheduledTask{ID: "v1:a:2:0", JobName: "a"}))

	var seen []string
	err := LoadTasks(store, func(task *types.ScheduledTask) error {
		seen = append(seen, task.ID)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1:a:1:0", "v1:a:2:0"}, seen)
}

func TestLoadJobsReplaysEverySavedJob(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveJob(&types.Job{Name: "a"}))
	require.NoError(t, store.SaveJob(&types.Job{Name: "b"}))

	var seen []string
	err := LoadJobs(store, func(job *types.Job) error {
		seen = append(seen, job.Name)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestLoadJobsPropagatesRestoreError(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveJob(&types.Job{Name: "a"}))

	err := LoadJobs(store, func(job *types.Job) error {
		return assert.AnError
	})
	assert.Error(t, err)
}
