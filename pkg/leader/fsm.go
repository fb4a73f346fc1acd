package leader

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/types"
)

// Command is a single replicated state change: a job or pending-task
// upsert/removal. The in-memory scheduler graph is not part of the FSM —
// only the leader's engine holds that; the FSM's job is to keep every
// node's durable store in lockstep so hydration after an election always
// has the full picture.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

func encodeCommand(op string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", op, err)
	}
	return json.Marshal(Command{Op: op, Data: data})
}

// FSM implements the Raft finite state machine. It applies committed log
// entries to store and nothing else; it never touches the engine directly
// since followers have no running engine to touch.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM builds an FSM over store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Apply applies one committed log entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case storage.OpSaveJob:
		var job types.Job
		if err := json.Unmarshal(cmd.Data, &job); err != nil {
			return err
		}
		return f.store.SaveJob(&job)

	case storage.OpRemoveJob:
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.RemoveJob(name)

	case storage.OpSaveTask:
		var task types.ScheduledTask
		if err := json.Unmarshal(cmd.Data, &task); err != nil {
			return err
		}
		return f.store.SavePendingTask(&task)

	case storage.OpRemoveTask:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.RemovePendingTask(id)

	default:
		return fmt.Errorf("unknown command op %q", cmd.Op)
	}
}

// Snapshot captures every job and pending task for Raft's snapshot machinery.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	jobs, err := f.store.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	tasks, err := f.store.ListPendingTasks()
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}

	return &snapshot{Jobs: jobs, Tasks: tasks}, nil
}

// Restore replaces store's contents with the decoded snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, job := range snap.Jobs {
		if err := f.store.SaveJob(job); err != nil {
			return fmt.Errorf("restore job %s: %w", job.Name, err)
		}
	}
	for _, task := range snap.Tasks {
		if err := f.store.SavePendingTask(task); err != nil {
			return fmt.Errorf("restore pending task %s: %w", task.ID, err)
		}
	}
	return nil
}

type snapshot struct {
	Jobs  []*types.Job          `json:"jobs"`
	Tasks []*types.ScheduledTask `json:"tasks"`
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *snapshot) Release() {}
