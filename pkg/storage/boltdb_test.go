package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/schedulerd/pkg/types"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetJob(t *testing.T) {
	store := openTestStore(t)

	job := &types.Job{Name: "daily-report", Kind: types.ScheduleBased, Schedule: "R/2024-01-01T00:00:00Z/PT24H"}
	require.NoError(t, store.SaveJob(job))

	got, err := store.GetJob("daily-report")
	require.NoError(t, err)
	assert.Equal(t, job.Schedule, got.Schedule)
}

func TestSaveJobIsUpsert(t *testing.T) {
	store := openTestStore(t)

	job := &types.Job{Name: "daily-report", Kind: types.ScheduleBased, Retries: 1}
	require.NoError(t, store.SaveJob(job))

	job.Retries = 5
	require.NoError(t, store.SaveJob(job))

	got, err := store.GetJob("daily-report")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Retries)
}

func TestGetJobNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetJob("missing")
	assert.Error(t, err)
}

func TestListJobs(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveJob(&types.Job{Name: "a"}))
	require.NoError(t, store.SaveJob(&types.Job{Name: "b"}))

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestRemoveJob(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveJob(&types.Job{Name: "a"}))
	require.NoError(t, store.RemoveJob("a"))

	_, err := store.GetJob("a")
	assert.Error(t, err)
}

func TestPendingTaskRoundTrip(t *testing.T) {
	store := openTestStore(t)

	task := &types.ScheduledTask{ID: "v1:a:1000:0", JobName: "a", Due: time.Unix(1, 0)}
	require.NoError(t, store.SavePendingTask(task))

	got, err := store.GetPendingTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.JobName, got.JobName)

	tasks, err := store.ListPendingTasks()
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, store.RemovePendingTask(task.ID))
	_, err = store.GetPendingTask(task.ID)
	assert.Error(t, err)
}
