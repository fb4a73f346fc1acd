package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/types"
)

type recordingListener struct {
	started  []types.TaskStatus
	finished []types.TaskStatus
	failed   []types.TaskStatus
	killed   []types.TaskStatus
}

func (r *recordingListener) HandleStarted(status types.TaskStatus) { r.started = append(r.started, status) }
func (r *recordingListener) HandleFinished(status types.TaskStatus, _ *time.Time) {
	r.finished = append(r.finished, status)
}
func (r *recordingListener) HandleFailed(status types.TaskStatus) { r.failed = append(r.failed, status) }
func (r *recordingListener) HandleKilled(status types.TaskStatus) { r.killed = append(r.killed, status) }

func newTestManager(t *testing.T) (*Manager, *InMemoryDriver) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := NewManager(nil, store)
	driver := NewInMemoryDriver(mgr)
	mgr.SetDriver(driver)
	require.NoError(t, mgr.Start())
	return mgr, driver
}

func TestEnqueueDispatchesAndNotifiesFinished(t *testing.T) {
	mgr, _ := newTestManager(t)
	listener := &recordingListener{}
	mgr.SetStatusListener(listener)

	task := &types.ScheduledTask{ID: "v1:a:1000:0", JobName: "a", Due: time.Now()}
	require.NoError(t, mgr.Enqueue(task))

	require.Eventually(t, func() bool { return len(listener.finished) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, listener.started, 1)
	assert.Equal(t, "v1:a:1000:0", listener.finished[0].TaskID)
}

func TestScheduleAtWaitsForDelay(t *testing.T) {
	mgr, _ := newTestManager(t)
	listener := &recordingListener{}
	mgr.SetStatusListener(listener)

	task := &types.ScheduledTask{ID: "v1:a:1000:0", JobName: "a"}
	require.NoError(t, mgr.ScheduleAt(task, 50*time.Millisecond))

	assert.Empty(t, listener.finished)
	require.Eventually(t, func() bool { return len(listener.finished) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCancelPreventsDispatch(t *testing.T) {
	mgr, _ := newTestManager(t)
	listener := &recordingListener{}
	mgr.SetStatusListener(listener)

	task := &types.ScheduledTask{ID: "v1:a:1000:0", JobName: "a"}
	require.NoError(t, mgr.ScheduleAt(task, 100*time.Millisecond))
	require.NoError(t, mgr.Cancel(task.ID))

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, listener.finished)
}

func TestCancelJobCancelsOnlyThatJobsTasks(t *testing.T) {
	mgr, _ := newTestManager(t)
	listener := &recordingListener{}
	mgr.SetStatusListener(listener)

	require.NoError(t, mgr.ScheduleAt(&types.ScheduledTask{ID: "v1:a:1:0", JobName: "a"}, time.Hour))
	require.NoError(t, mgr.ScheduleAt(&types.ScheduledTask{ID: "v1:b:1:0", JobName: "b"}, time.Hour))

	require.NoError(t, mgr.CancelJob("a"))

	_, aOK := mgr.TimeUntilExecution("v1:a:1:0")
	_, bOK := mgr.TimeUntilExecution("v1:b:1:0")
	assert.False(t, aOK)
	assert.True(t, bOK)
}

func TestFlushCancelsAllOutstanding(t *testing.T) {
	mgr, _ := newTestManager(t)
	listener := &recordingListener{}
	mgr.SetStatusListener(listener)

	require.NoError(t, mgr.ScheduleAt(&types.ScheduledTask{ID: "v1:a:1:0"}, time.Hour))
	require.NoError(t, mgr.ScheduleAt(&types.ScheduledTask{ID: "v1:b:1:0"}, time.Hour))

	require.NoError(t, mgr.Flush())

	_, ok := mgr.TimeUntilExecution("v1:a:1:0")
	assert.False(t, ok)
}

func TestTimeUntilExecutionReflectsDelay(t *testing.T) {
	mgr, _ := newTestManager(t)
	task := &types.ScheduledTask{ID: "v1:a:1:0"}
	require.NoError(t, mgr.ScheduleAt(task, time.Hour))

	remaining, ok := mgr.TimeUntilExecution(task.ID)
	require.True(t, ok)
	assert.Greater(t, remaining, 55*time.Minute)
}

func TestDispatchReportsFailure(t *testing.T) {
	mgr, driver := newTestManager(t)
	listener := &recordingListener{}
	mgr.SetStatusListener(listener)
	driver.Execute = func(task *types.ScheduledTask) (types.TaskState, string) {
		return types.TaskFailed, "boom"
	}

	require.NoError(t, mgr.Enqueue(&types.ScheduledTask{ID: "v1:a:1:0"}))
	require.Eventually(t, func() bool { return len(listener.failed) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "boom", listener.failed[0].Message)
}
