// Package engine is the Scheduler Engine: it owns the live set of schedule
// streams, drives the periodic horizon iteration, handles task-status
// callbacks, enforces retry/disable policy, and arbitrates updates to the
// job graph and persistence.
//
// A single mutex, L, serializes every mutation of streams, the graph, and
// persistence writes. The run loop, the leader callback, the task-manager
// status callbacks, and the delayed-retry timer all acquire L before
// touching core state; none of them sleep while holding it.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/schedulerd/pkg/events"
	"github.com/cuemby/schedulerd/pkg/graph"
	"github.com/cuemby/schedulerd/pkg/log"
	"github.com/cuemby/schedulerd/pkg/metrics"
	"github.com/cuemby/schedulerd/pkg/schedule"
	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/taskqueue"
	"github.com/cuemby/schedulerd/pkg/types"
)

// Config holds the engine's tunables. There is no per-job override of
// ScheduleHorizon, FailureRetryDelay, or DisableAfterFailures; DisableAfterFailures
// of 0 disables the policy (a job is never auto-disabled by failure count).
type Config struct {
	ScheduleHorizon      time.Duration
	FailureRetryDelay    time.Duration
	DisableAfterFailures int
}

// Applier routes a durable mutation through the coordination service before
// it is considered committed, satisfied by *leader.Lifecycle (kept as a
// narrow interface here the same way pkg/metrics.RaftSource avoids
// importing pkg/leader back into pkg/engine, which already imports
// pkg/engine and would cycle). When nil, the engine persists straight to
// its store, which is what a leaderless/standalone engine (tests, a
// single-node non-raft run) does.
type Applier interface {
	Apply(op string, payload interface{}) error
}

// Engine is the scheduler's core state machine.
type Engine struct {
	cfg Config

	mu      sync.Mutex // L
	graph   *graph.Graph
	streams map[string]*schedule.Stream

	store   storage.Store
	applier Applier
	tasks   *taskqueue.Manager
	broker  *events.Broker

	running atomic.Bool
	leader  atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New builds an Engine. It does not start the run loop; call Start once
// leadership is acquired and state has been hydrated.
func New(cfg Config, store storage.Store, tasks *taskqueue.Manager, broker *events.Broker) *Engine {
	e := &Engine{
		cfg:     cfg,
		graph:   graph.New(),
		streams: make(map[string]*schedule.Stream),
		store:   store,
		tasks:   tasks,
		broker:  broker,
		now:     time.Now,
	}
	tasks.SetStatusListener(e)
	return e
}

func (e *Engine) clock() time.Time { return e.now() }

// SetApplier wires the coordination service's replicated-apply path in,
// called once by pkg/leader.New. Until this is called every persist below
// falls back to writing the local store directly.
func (e *Engine) SetApplier(a Applier) { e.applier = a }

// persistJob saves job through the coordination service when one is wired,
// so the write is raft-replicated before being considered durable; falls
// back to a direct store write for a leaderless/standalone engine.
func (e *Engine) persistJob(job *types.Job) error {
	if e.applier != nil {
		return e.applier.Apply(storage.OpSaveJob, job)
	}
	return e.store.SaveJob(job)
}

// persistJobRemoval mirrors persistJob for job deletion.
func (e *Engine) persistJobRemoval(name string) error {
	if e.applier != nil {
		return e.applier.Apply(storage.OpRemoveJob, name)
	}
	return e.store.RemoveJob(name)
}

// SetLeader flips the leader flag read by RegisterJob et al. The leader
// lifecycle (pkg/leader) is responsible for sequencing this against
// hydration and the run loop.
func (e *Engine) SetLeader(isLeader bool) { e.leader.Store(isLeader) }

// IsRunning reports whether the run loop is active.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// JobCount returns the number of jobs currently in the graph.
func (e *Engine) JobCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Len()
}

// DisabledJobCount returns the number of registered jobs currently disabled.
func (e *Engine) DisabledJobCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, name := range e.graph.VertexNames() {
		job, ok := e.graph.LookupVertex(name)
		if ok && job.Disabled {
			count++
		}
	}
	return count
}

// Jobs returns a snapshot of every currently registered job, order
// unspecified. Used by the admin HTTP surface to list jobs.
func (e *Engine) Jobs() []*types.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	jobs := make([]*types.Job, 0, e.graph.Len())
	for _, name := range e.graph.VertexNames() {
		if job, ok := e.graph.LookupVertex(name); ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// RegisterJob admits one or more new jobs, wiring graph edges for
// dependency-based jobs and creating a fresh schedule stream for
// non-disabled schedule-based jobs.
func (e *Engine) RegisterJob(jobs []*types.Job, persist bool, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerJobLocked(jobs, persist, now)
}

func (e *Engine) registerJobLocked(jobs []*types.Job, persist bool, now time.Time) error {
	if !e.leader.Load() {
		return ErrNotLeader
	}
	for _, job := range jobs {
		if !job.IsScheduleBased() && !job.IsDependencyBased() {
			return ErrUnknownJobType
		}

		e.graph.AddVertex(job)
		if job.IsDependencyBased() {
			for parent := range job.Parents {
				if err := e.graph.AddDependency(parent, job.Name); err != nil {
					return err
				}
			}
		}

		if persist {
			if err := e.persistJob(job); err != nil {
				return fmt.Errorf("persist job %s: %w", job.Name, err)
			}
		}

		if job.IsScheduleBased() && !job.Disabled {
			e.streams[job.Name] = schedule.New(job.Schedule, job.Name, job.ScheduleTimeZone)
		}

		metrics.JobsRegistered.Inc()
		e.broker.Publish(&events.Event{Type: events.EventJobRegistered, JobName: job.Name})
	}
	return nil
}

// UpdateJob replaces old with new in the graph, rebuilding the schedule
// stream (and running an immediate iteration) if new is a non-disabled
// schedule-based job.
func (e *Engine) UpdateJob(old, newJob *types.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateJobLocked(old, newJob)
}

func (e *Engine) updateJobLocked(old, newJob *types.Job) error {
	if old.Name != newJob.Name {
		return ErrJobRenameNotSupported
	}
	if err := e.graph.ReplaceVertex(old, newJob); err != nil {
		return err
	}

	if newJob.IsScheduleBased() {
		delete(e.streams, newJob.Name)
		if !newJob.Disabled {
			e.streams[newJob.Name] = schedule.New(newJob.Schedule, newJob.Name, newJob.ScheduleTimeZone)
			e.iterationLocked(e.clock())
		}
	}

	if err := e.persistJob(newJob); err != nil {
		return fmt.Errorf("persist job %s: %w", newJob.Name, err)
	}
	e.broker.Publish(&events.Event{Type: events.EventJobUpdated, JobName: newJob.Name})
	return nil
}

// DeregisterJob removes job from the graph: any dependency-based child with
// more than one parent has job.Name dropped from its parent set first
// (an updateJob call); the vertex, its stream, and its in-flight tasks are
// then removed.
func (e *Engine) DeregisterJob(job *types.Job, persist bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, childName := range e.graph.GetChildren(job.Name) {
		child, ok := e.graph.LookupVertex(childName)
		if !ok || !child.IsDependencyBased() {
			continue
		}
		if len(child.Parents) > 1 {
			updated := child.Clone()
			delete(updated.Parents, job.Name)
			if err := e.updateJobLocked(child, updated); err != nil {
				return fmt.Errorf("detach %s from %s: %w", job.Name, childName, err)
			}
		}
	}

	e.graph.RemoveVertex(job.Name)
	delete(e.streams, job.Name)

	if err := e.tasks.CancelJob(job.Name); err != nil {
		log.WithJobName(job.Name).Error().Err(err).Msg("cancel in-flight tasks failed")
	}

	e.broker.Publish(&events.Event{Type: events.EventJobRemoved, JobName: job.Name})
	metrics.JobsRegistered.Dec()

	if persist {
		if err := e.persistJobRemoval(job.Name); err != nil {
			return fmt.Errorf("remove job %s: %w", job.Name, err)
		}
	}
	return nil
}

// ReplaceJob is a graph replace followed by a persist, with no stream or
// iteration side effects.
func (e *Engine) ReplaceJob(old, newJob *types.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.graph.ReplaceVertex(old, newJob); err != nil {
		return err
	}
	return e.persistJob(newJob)
}

// Reset clears streams and the graph, optionally flushing the task queue.
func (e *Engine) Reset(purgeQueue bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.streams = make(map[string]*schedule.Stream)
	e.graph.Reset()
	if purgeQueue {
		return e.tasks.Flush()
	}
	return nil
}

// RestoreJob re-admits a job recovered from the store during hydration.
// Unlike RegisterJob it does not require e.leader to already be set, since
// hydration happens before the leader flag is flipped to true in some
// sequencings; callers (pkg/leader) are responsible for calling this only
// while holding exclusive hydration control.
func (e *Engine) RestoreJob(job *types.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.graph.AddVertex(job)
	if job.IsDependencyBased() {
		for parent := range job.Parents {
			if _, ok := e.graph.LookupVertex(parent); !ok {
				continue
			}
			if err := e.graph.AddDependency(parent, job.Name); err != nil {
				return err
			}
		}
	}
	if job.IsScheduleBased() && !job.Disabled {
		e.streams[job.Name] = schedule.New(job.Schedule, job.Name, job.ScheduleTimeZone)
	}
	return nil
}
