package taskqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/schedulerd/pkg/types"
)

// InMemoryDriver is a minimal Driver used outside of a real cluster: it
// treats Dispatch as an immediate, synchronous RUNNING→FINISHED transition
// and reports it straight back to the owning Manager. It exists so the
// scheduler engine has something concrete to drive in tests and in
// single-process deployments; a real resource-manager driver (gRPC client
// against the cluster's agent fleet) is a separate, out-of-scope
// integration.
type InMemoryDriver struct {
	manager *Manager

	mu      sync.Mutex
	started bool

	// Execute, if set, decides the outcome of a dispatched task. The
	// default simulates immediate success.
	Execute func(task *types.ScheduledTask) (state types.TaskState, message string)
}

// NewInMemoryDriver builds a driver that reports status back to manager.
func NewInMemoryDriver(manager *Manager) *InMemoryDriver {
	return &InMemoryDriver{manager: manager}
}

func (d *InMemoryDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *InMemoryDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

func (d *InMemoryDriver) Dispatch(task *types.ScheduledTask) error {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return fmt.Errorf("driver not started")
	}

	now := time.Now()
	d.manager.notifyStarted(types.TaskStatus{TaskID: task.ID, State: types.TaskRunning, SlaveID: "local"})

	state, message := types.TaskFinished, ""
	if d.Execute != nil {
		state, message = d.Execute(task)
	}

	status := types.TaskStatus{TaskID: task.ID, State: state, SlaveID: "local", Message: message}
	switch state {
	case types.TaskFinished:
		d.manager.notifyFinished(status, &now)
	case types.TaskFailed:
		d.manager.notifyFailed(status)
	case types.TaskKilled, types.TaskLost:
		d.manager.notifyKilled(status)
	}
	return nil
}
