package leader

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/schedulerd/pkg/engine"
	"github.com/cuemby/schedulerd/pkg/events"
	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/taskqueue"
	"github.com/cuemby/schedulerd/pkg/types"
)

// freeAddr grabs an ephemeral TCP port and releases it immediately so a
// raft transport can bind to a known, currently-unused address.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newTestLifecycle(t *testing.T) (*Lifecycle, storage.Store, *engine.Engine, *taskqueue.Manager) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := taskqueue.NewManager(nil, store)
	driver := taskqueue.NewInMemoryDriver(mgr)
	mgr.SetDriver(driver)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	eng := engine.New(engine.Config{ScheduleHorizon: time.Minute}, store, mgr, broker)

	cfg := Config{
		NodeID:    "node-1",
		BindAddr:  freeAddr(t),
		DataDir:   t.TempDir(),
		Bootstrap: true,
	}
	lf, err := New(cfg, store, eng, mgr)
	require.NoError(t, err)
	t.Cleanup(func() { lf.ShutDown() })

	return lf, store, eng, mgr
}

func TestBootstrapNodeBecomesLeader(t *testing.T) {
	lf, _, eng, _ := newTestLifecycle(t)
	lf.StartUp()

	require.Eventually(t, func() bool { return lf.IsLeader() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return eng.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestApplyReplicatesJobToStore(t *testing.T) {
	lf, store, _, _ := newTestLifecycle(t)
	lf.StartUp()
	require.Eventually(t, func() bool { return lf.IsLeader() }, 5*time.Second, 10*time.Millisecond)

	job := &types.Job{Name: "replicated", Kind: types.ScheduleBased, Schedule: "R1/2024-01-01T00:00:00Z/PT1M"}
	require.NoError(t, lf.Apply(storage.OpSaveJob, job))

	require.Eventually(t, func() bool {
		stored, err := store.GetJob("replicated")
		return err == nil && stored != nil
	}, time.Second, 5*time.Millisecond)
}

func TestRegisterJobReplicatesThroughApplier(t *testing.T) {
	lf, store, eng, _ := newTestLifecycle(t)
	lf.StartUp()
	require.Eventually(t, func() bool { return lf.IsLeader() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return eng.IsRunning() }, time.Second, 5*time.Millisecond)

	job := &types.Job{Name: "via-engine", Kind: types.ScheduleBased, Schedule: "R1/2024-01-01T00:00:00Z/PT1M"}
	require.NoError(t, eng.RegisterJob([]*types.Job{job}, true, time.Now()))

	stored, err := store.GetJob("via-engine")
	require.NoError(t, err, "engine.RegisterJob's persist must reach the store via Lifecycle.Apply, not a direct write")
	require.NotNil(t, stored)
}

func TestOnElectedHydratesPendingTasksAndJobs(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	job := &types.Job{Name: "nightly", Kind: types.ScheduleBased, Schedule: "R1/2024-01-01T00:00:00Z/PT1M"}
	require.NoError(t, store.SaveJob(job))
	task := &types.ScheduledTask{ID: "v1:nightly:1000:0", JobName: "nightly", Due: time.Now().Add(time.Hour)}
	require.NoError(t, store.SavePendingTask(task))

	mgr := taskqueue.NewManager(nil, store)
	driver := taskqueue.NewInMemoryDriver(mgr)
	mgr.SetDriver(driver)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	eng := engine.New(engine.Config{ScheduleHorizon: time.Minute}, store, mgr, broker)

	cfg := Config{NodeID: "node-1", BindAddr: freeAddr(t), DataDir: t.TempDir(), Bootstrap: true}
	lf, err := New(cfg, store, eng, mgr)
	require.NoError(t, err)
	t.Cleanup(func() { lf.ShutDown() })

	lf.StartUp()
	require.Eventually(t, func() bool { return eng.IsRunning() }, 5*time.Second, 10*time.Millisecond)

	_, pending := mgr.TimeUntilExecution(task.ID)
	require.True(t, pending, "pending task should have been restored during hydration")

	require.Equal(t, 1, eng.JobCount())
}

func TestShutDownStopsEngine(t *testing.T) {
	lf, _, eng, _ := newTestLifecycle(t)
	lf.StartUp()
	require.Eventually(t, func() bool { return eng.IsRunning() }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, lf.ShutDown())
	require.False(t, eng.IsRunning())
}
