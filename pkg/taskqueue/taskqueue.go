// Package taskqueue is the Task Manager: the engine's opaque sink for
// outstanding work and the source of task-status callbacks.
//
// The engine never talks to the resource-manager driver directly — it hands
// ScheduledTasks to a Manager, which persists them, arms a delay timer, and
// dispatches through a Driver port once due. The driver itself (the real
// cluster resource-manager client) is out of scope here: Manager is wired
// against the Driver interface and a minimal in-memory adapter, not a
// concrete wire-protocol client.
package taskqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/schedulerd/pkg/log"
	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/types"
)

// Driver is the resource-manager driver port: started once when the
// scheduler becomes leader, closed on defeat, and asked to dispatch a task
// once its delay elapses. Status updates flow back through a StatusListener
// registered on the Manager, not through the Driver interface itself.
type Driver interface {
	Start() error
	Close() error
	Dispatch(task *types.ScheduledTask) error
}

// StatusListener receives task lifecycle callbacks, mirroring the shape the
// engine implements to drive handleStartedTask/handleFinishedTask/
// handleFailedTask/handleKilledTask.
type StatusListener interface {
	HandleStarted(status types.TaskStatus)
	HandleFinished(status types.TaskStatus, taskDate *time.Time)
	HandleFailed(status types.TaskStatus)
	HandleKilled(status types.TaskStatus)
}

// Applier routes a durable mutation through the coordination service before
// it is considered committed, satisfied by *leader.Lifecycle. Nil when the
// manager is used standalone (tests, a non-raft local run), in which case
// pending-task writes go straight to the store.
type Applier interface {
	Apply(op string, payload interface{}) error
}

// Manager implements enqueue, delayed-schedule, cancel, flush, persist-task
// and time-until-execution over a Driver and a Store.
type Manager struct {
	mu       sync.Mutex
	driver   Driver
	store    storage.Store
	applier  Applier
	listener StatusListener
	timers   map[string]*time.Timer
	due      map[string]time.Time
	jobOf    map[string]string
}

// NewManager builds a Manager. Call SetStatusListener before Start so no
// status callback is dropped on the floor.
func NewManager(driver Driver, store storage.Store) *Manager {
	return &Manager{
		driver: driver,
		store:  store,
		timers: make(map[string]*time.Timer),
		due:    make(map[string]time.Time),
		jobOf:  make(map[string]string),
	}
}

// SetApplier wires the coordination service's replicated-apply path in,
// called once by pkg/leader.New. Until this is called, PersistTask/Cancel/
// Flush fall back to writing the local store directly.
func (m *Manager) SetApplier(a Applier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applier = a
}

// SetStatusListener registers the callback sink for task status updates.
func (m *Manager) SetStatusListener(listener StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

// SetDriver wires the resource-manager driver, used when the driver itself
// needs a reference back to its owning Manager (as InMemoryDriver does) and
// so must be constructed after the Manager. Call before Start.
func (m *Manager) SetDriver(driver Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver = driver
}

// Start starts the resource-manager driver.
func (m *Manager) Start() error {
	return m.driver.Start()
}

// Close cancels every outstanding timer and closes the driver. In-flight
// timers that fire after Close simply find the driver already closed;
// Dispatch errors from a closed driver are logged, not propagated, since
// nothing is listening on the other end of a cancelled leadership term.
func (m *Manager) Close() error {
	m.mu.Lock()
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
		delete(m.due, id)
	}
	m.mu.Unlock()
	return m.driver.Close()
}

// Enqueue dispatches a task immediately and persists it as pending.
func (m *Manager) Enqueue(task *types.ScheduledTask) error {
	return m.ScheduleAt(task, 0)
}

// ScheduleAt persists task and arms a delay timer of at least 0 after which
// it is dispatched through the driver. A zero or negative delay dispatches
// at once on the timer's own goroutine rather than synchronously, so callers
// holding a lock are never blocked on the driver.
func (m *Manager) ScheduleAt(task *types.ScheduledTask, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	if err := m.PersistTask(task); err != nil {
		return fmt.Errorf("persist task %s: %w", task.ID, err)
	}

	m.mu.Lock()
	m.due[task.ID] = time.Now().Add(delay)
	m.jobOf[task.ID] = task.JobName
	m.timers[task.ID] = time.AfterFunc(delay, func() { m.dispatch(task) })
	m.mu.Unlock()
	return nil
}

func (m *Manager) dispatch(task *types.ScheduledTask) {
	m.mu.Lock()
	delete(m.timers, task.ID)
	delete(m.due, task.ID)
	delete(m.jobOf, task.ID)
	m.mu.Unlock()

	if err := m.driver.Dispatch(task); err != nil {
		log.WithTaskID(task.ID).Error().Err(err).Msg("dispatch failed")
		return
	}
	if err := m.removePendingTask(task.ID); err != nil {
		log.WithTaskID(task.ID).Error().Err(err).Msg("remove dispatched task record failed")
	}
}

// Cancel stops a task's delay timer, if still pending, and removes its
// durable record.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	if timer, ok := m.timers[taskID]; ok {
		timer.Stop()
		delete(m.timers, taskID)
		delete(m.due, taskID)
		delete(m.jobOf, taskID)
	}
	m.mu.Unlock()
	return m.removePendingTask(taskID)
}

// CancelJob cancels every outstanding task belonging to jobName, used by
// deregisterJob to clear in-flight tasks for a removed job.
func (m *Manager) CancelJob(jobName string) error {
	m.mu.Lock()
	var ids []string
	for id, name := range m.jobOf {
		if name == jobName {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Cancel(id); err != nil {
			return err
		}
	}
	return nil
}

// PendingTaskIDs returns the ids of outstanding tasks belonging to jobName,
// order unspecified.
func (m *Manager) PendingTaskIDs(jobName string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, name := range m.jobOf {
		if name == jobName {
			ids = append(ids, id)
		}
	}
	return ids
}

// Flush cancels every outstanding timer and persisted pending task, used by
// reset(purgeQueue).
func (m *Manager) Flush() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.timers))
	for id, timer := range m.timers {
		timer.Stop()
		ids = append(ids, id)
	}
	m.timers = make(map[string]*time.Timer)
	m.due = make(map[string]time.Time)
	m.jobOf = make(map[string]string)
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.removePendingTask(id); err != nil {
			return err
		}
	}
	return nil
}

// PersistTask durably records task as pending, through the coordination
// service when one is wired (see Applier), or straight to the store for a
// leaderless/standalone manager.
func (m *Manager) PersistTask(task *types.ScheduledTask) error {
	m.mu.Lock()
	applier := m.applier
	m.mu.Unlock()
	if applier != nil {
		return applier.Apply(storage.OpSaveTask, task)
	}
	return m.store.SavePendingTask(task)
}

// removePendingTask mirrors PersistTask for pending-task removal.
func (m *Manager) removePendingTask(taskID string) error {
	m.mu.Lock()
	applier := m.applier
	m.mu.Unlock()
	if applier != nil {
		return applier.Apply(storage.OpRemoveTask, taskID)
	}
	return m.store.RemovePendingTask(taskID)
}

// TimeUntilExecution returns how long until taskID fires, if it is still
// outstanding.
func (m *Manager) TimeUntilExecution(taskID string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due, ok := m.due[taskID]
	if !ok {
		return 0, false
	}
	return time.Until(due), true
}

// RestorePendingTask re-arms a timer for a task recovered from storage
// during hydration, without re-persisting it (it is already durable).
func (m *Manager) RestorePendingTask(task *types.ScheduledTask) {
	delay := time.Until(task.Due)
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	m.due[task.ID] = time.Now().Add(delay)
	m.jobOf[task.ID] = task.JobName
	m.timers[task.ID] = time.AfterFunc(delay, func() { m.dispatch(task) })
	m.mu.Unlock()
}

// notifyStarted, notifyFinished, notifyFailed and notifyKilled forward a
// driver-reported status update to the registered StatusListener; drivers
// call these from their own goroutines.
func (m *Manager) notifyStarted(status types.TaskStatus) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		l.HandleStarted(status)
	}
}

func (m *Manager) notifyFinished(status types.TaskStatus, taskDate *time.Time) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		l.HandleFinished(status, taskDate)
	}
}

func (m *Manager) notifyFailed(status types.TaskStatus) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		l.HandleFailed(status)
	}
}

func (m *Manager) notifyKilled(status types.TaskStatus) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		l.HandleKilled(status)
	}
}
