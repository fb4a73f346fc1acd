// Package leader is the leader latch: a raft single-group cluster standing
// in for the coordination-service sketch in spec §6. raft.Raft IS the
// latch; raft.LeaderCh() is the notification channel the lifecycle below
// subscribes to, on its own single-threaded executor, to drive the engine's
// onElected/onDefeated transitions.
package leader

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/schedulerd/pkg/engine"
	"github.com/cuemby/schedulerd/pkg/log"
	"github.com/cuemby/schedulerd/pkg/metrics"
	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/taskqueue"
	"github.com/cuemby/schedulerd/pkg/types"
)

// Config holds the latch's tunables. The heartbeat/election/commit/lease
// timeouts are tightened from hashicorp/raft's WAN-oriented defaults for a
// single-datacenter deployment targeting sub-10s failover: defaults are
// HeartbeatTimeout=1s, ElectionTimeout=1s, LeaderLeaseTimeout=500ms.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// Bootstrap is true for the node that forms a brand-new single-node
	// cluster. Nodes joining an existing cluster leave this false and are
	// admitted via AddVoter from the current leader.
	Bootstrap bool

	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	CommitTimeout      time.Duration
	LeaderLeaseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 500 * time.Millisecond
	}
	if c.ElectionTimeout == 0 {
		c.ElectionTimeout = 500 * time.Millisecond
	}
	if c.CommitTimeout == 0 {
		c.CommitTimeout = 50 * time.Millisecond
	}
	if c.LeaderLeaseTimeout == 0 {
		c.LeaderLeaseTimeout = 250 * time.Millisecond
	}
	return c
}

// Lifecycle owns the raft instance and drives the engine and task manager
// through onElected/onDefeated as leadership changes hands.
type Lifecycle struct {
	cfg   Config
	raft  *raft.Raft
	fsm   *FSM
	store storage.Store

	engine *engine.Engine
	tasks  *taskqueue.Manager

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New builds the raft instance (transport, snapshot store, bolt-backed log
// and stable stores) and, for the bootstrap node, forms a new single-node
// cluster. It does not subscribe to leadership changes yet; call StartUp
// for that.
func New(cfg Config, store storage.Store, eng *engine.Engine, tasks *taskqueue.Manager) (*Lifecycle, error) {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	raftCfg.ElectionTimeout = cfg.ElectionTimeout
	raftCfg.CommitTimeout = cfg.CommitTimeout
	raftCfg.LeaderLeaseTimeout = cfg.LeaderLeaseTimeout

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	fsm := NewFSM(store)
	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft instance: %w", err)
	}

	if cfg.Bootstrap {
		future := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		})
		if err := future.Error(); err != nil {
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	l := &Lifecycle{cfg: cfg, raft: r, fsm: fsm, store: store, engine: eng, tasks: tasks}

	// Both the engine's job writes and the task manager's pending-task
	// writes now flow through l.Apply (raft) rather than straight to store,
	// so every mutation is replicated before a follower could hydrate from
	// it; see FSM.Apply for the other end of this path.
	eng.SetApplier(l)
	tasks.SetApplier(l)

	return l, nil
}

// AddVoter admits a joining node to the cluster. Called on the current
// leader in response to that node's join request.
func (l *Lifecycle) AddVoter(nodeID, addr string) error {
	future := l.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer evicts a node from the cluster, e.g. after it is decommissioned.
func (l *Lifecycle) RemoveServer(nodeID string) error {
	future := l.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// StartUp subscribes to the latch's leadership notifications and starts the
// single-threaded executor that drives onElected/onDefeated.
func (l *Lifecycle) StartUp() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run()
}

// ShutDown marks the engine not-running, closes the latch's notification
// loop, and waits for the executor goroutine to exit.
func (l *Lifecycle) ShutDown() error {
	l.mu.Lock()
	wasStarted := l.started
	l.started = false
	if wasStarted {
		close(l.stopCh)
	}
	l.mu.Unlock()

	if wasStarted {
		l.wg.Wait()
	}

	if l.engine.IsRunning() {
		l.engine.Stop()
	}
	return l.raft.Shutdown().Error()
}

// run is the single-threaded executor: it processes raft.LeaderCh()
// notifications one at a time, never overlapping onElected with onDefeated.
func (l *Lifecycle) run() {
	defer l.wg.Done()
	ch := l.raft.LeaderCh()
	for {
		select {
		case <-l.stopCh:
			return
		case isLeader := <-ch:
			if isLeader {
				l.onElected()
			} else {
				l.onDefeated()
			}
		}
	}
}

// onElected hydrates pending tasks before jobs (loading jobs first could
// schedule a task whose pending-task state has not yet been restored,
// producing a duplicate firing), then starts the task manager's driver and
// the engine's run loop. A hydration failure is treated as fatal: there is
// no safe partially-hydrated state to run a scheduler loop against.
func (l *Lifecycle) onElected() {
	l.engine.SetLeader(true)

	restoreTask := func(task *types.ScheduledTask) error {
		l.tasks.RestorePendingTask(task)
		return nil
	}
	if err := storage.LoadTasks(l.store, restoreTask); err != nil {
		log.Fatal(fmt.Sprintf("hydrate pending tasks failed: %v", err))
	}
	if err := storage.LoadJobs(l.store, l.engine.RestoreJob); err != nil {
		log.Fatal(fmt.Sprintf("hydrate jobs failed: %v", err))
	}

	if err := l.tasks.Start(); err != nil {
		log.Fatal(fmt.Sprintf("start task manager driver failed: %v", err))
	}
	l.engine.Start()
	log.WithComponent("leader").Info().Str("node_id", l.cfg.NodeID).Msg("elected leader")
}

// onDefeated closes the driver, stops the run loop, and resets the graph so
// a future election rebuilds it from a clean hydration rather than a
// possibly-stale in-memory snapshot.
func (l *Lifecycle) onDefeated() {
	l.engine.SetLeader(false)
	if err := l.tasks.Close(); err != nil {
		log.Error(fmt.Sprintf("close task manager driver: %v", err))
	}
	l.engine.Stop()
	if err := l.engine.Reset(false); err != nil {
		log.Error(fmt.Sprintf("reset engine graph: %v", err))
	}
	log.WithComponent("leader").Info().Str("node_id", l.cfg.NodeID).Msg("defeated")
}

// GetLeader returns the current leader's raft server id, as reported by the
// latch; empty if no leader is currently known.
func (l *Lifecycle) GetLeader() string {
	_, id := l.raft.LeaderWithID()
	return string(id)
}

// IsLeader satisfies metrics.RaftSource.
func (l *Lifecycle) IsLeader() bool { return l.raft.State() == raft.Leader }

// AppliedIndex satisfies metrics.RaftSource.
func (l *Lifecycle) AppliedIndex() uint64 { return l.raft.AppliedIndex() }

// PeerCount satisfies metrics.RaftSource.
func (l *Lifecycle) PeerCount() int {
	future := l.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

// Apply replicates cmd through raft, blocking until it is committed and
// applied to this node's FSM, and reports how long that took.
func (l *Lifecycle) Apply(op string, payload interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	data, err := encodeCommand(op, payload)
	if err != nil {
		return err
	}
	future := l.raft.Apply(data, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raft apply: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return fmt.Errorf("fsm apply: %w", err)
		}
	}
	return nil
}
