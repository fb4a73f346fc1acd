package engine

import (
	"time"

	"github.com/cuemby/schedulerd/internal/taskid"
	"github.com/cuemby/schedulerd/pkg/events"
	"github.com/cuemby/schedulerd/pkg/log"
	"github.com/cuemby/schedulerd/pkg/metrics"
	"github.com/cuemby/schedulerd/pkg/schedule"
	"github.com/cuemby/schedulerd/pkg/types"
)

// HandleStarted implements taskqueue.StatusListener. A dependency-based
// job's invocation set is cleared so a firing mid-flight does not get
// double-counted against its own completion.
func (e *Engine) HandleStarted(status types.TaskStatus) {
	id, ok := taskid.Parse(status.TaskID)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.graph.LookupVertex(id.JobName)
	if !ok {
		return
	}
	if job.IsDependencyBased() {
		e.graph.ResetDependencyInvocations(job.Name)
	}
	e.broker.Publish(&events.Event{
		Type: events.EventTaskStarted, JobName: job.Name, TaskID: status.TaskID, Timestamp: time.Now(),
	})
}

// HandleFinished implements taskqueue.StatusListener.
func (e *Engine) HandleFinished(status types.TaskStatus, taskDate *time.Time) {
	id, ok := taskid.Parse(status.TaskID)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.graph.LookupVertex(id.JobName)
	if !ok {
		return
	}

	now := e.clock()
	metrics.SchedulingLatency.Observe(now.Sub(id.Due).Seconds())
	metrics.TasksFinished.WithLabelValues(job.Name, "success").Inc()

	e.broker.Publish(&events.Event{
		Type: events.EventTaskFinished, JobName: job.Name, TaskID: status.TaskID, Timestamp: now,
	})

	updated := job.Clone()
	updated.SuccessCount++
	updated.ErrorsSinceLastSuccess = 0
	updated.LastSuccess = now
	if err := e.replaceJobLocked(job, updated); err != nil {
		log.WithJobName(job.Name).Error().Err(err).Msg("persist success counters failed")
		return
	}
	job = updated

	effective := now
	if taskDate != nil {
		effective = *taskDate
	}
	e.processDependenciesLocked(job.Name, effective)

	if job.IsScheduleBased() {
		parsed, ok := schedule.ParseExpression(job.Schedule, job.ScheduleTimeZone)
		if ok && parsed.Recurrences == 0 {
			disabled := job.Clone()
			disabled.Disabled = true
			if err := e.replaceJobLocked(job, disabled); err != nil {
				log.WithJobName(job.Name).Error().Err(err).Msg("persist auto-disable failed")
				return
			}
			e.broker.Publish(&events.Event{
				Type: events.EventJobDisabled, JobName: job.Name, Timestamp: now,
				Message: "recurrences exhausted",
			})
		}
	}
}

// HandleFailed implements taskqueue.StatusListener.
func (e *Engine) HandleFailed(status types.TaskStatus) {
	id, ok := taskid.Parse(status.TaskID)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.graph.LookupVertex(id.JobName)
	if !ok {
		return
	}

	now := e.clock()
	metrics.TasksFinished.WithLabelValues(job.Name, "failure").Inc()
	e.broker.Publish(&events.Event{
		Type: events.EventTaskFailed, JobName: job.Name, TaskID: status.TaskID, Timestamp: now,
		Message: status.Message,
	})

	// The retry gate is kept exactly as written on purpose: a job whose last
	// error is newer than its last success (including one that has failed and
	// never succeeded) gets no retry, even with attempts left.
	hasAttemptsLeft := id.Attempt < job.Retries
	hadRecentSuccess := !job.LastError.IsZero() && !job.LastSuccess.IsZero() && !job.LastSuccess.Before(job.LastError)

	if hasAttemptsLeft && (job.LastError.IsZero() || hadRecentSuccess) {
		retryDue := now.Add(e.cfg.FailureRetryDelay)
		retryTask := &types.ScheduledTask{
			ID:           taskid.New(job.Name, retryDue, id.Attempt+1),
			Due:          retryDue,
			JobName:      job.Name,
			Attempt:      id.Attempt + 1,
			HighPriority: job.HighPriority,
		}
		if err := e.tasks.ScheduleAt(retryTask, e.cfg.FailureRetryDelay); err != nil {
			log.WithJobName(job.Name).Error().Err(err).Msg("schedule retry failed")
			return
		}
		metrics.TasksRetried.WithLabelValues(job.Name).Inc()
		return
	}

	disableJob := e.cfg.DisableAfterFailures > 0 && job.ErrorsSinceLastSuccess+1 >= int64(e.cfg.DisableAfterFailures)

	updated := job.Clone()
	updated.ErrorCount++
	updated.ErrorsSinceLastSuccess++
	updated.LastError = now
	updated.Disabled = disableJob
	if err := e.updateJobLocked(job, updated); err != nil {
		log.WithJobName(job.Name).Error().Err(err).Msg("persist failure counters failed")
		return
	}

	if updated.SoftError {
		e.processDependenciesLocked(updated.Name, now)
	}

	if disableJob {
		e.broker.Publish(&events.Event{
			Type: events.EventJobDisabled, JobName: job.Name, Timestamp: now,
			Message: "disabled after repeated failures",
		})
	} else {
		e.broker.Publish(&events.Event{
			Type: events.EventTaskRetriesExhausted, JobName: job.Name, TaskID: status.TaskID, Timestamp: now,
		})
	}
}

// HandleKilled implements taskqueue.StatusListener. No state change; this is
// an observability-only callback.
func (e *Engine) HandleKilled(status types.TaskStatus) {
	id, ok := taskid.Parse(status.TaskID)
	jobName := status.TaskID
	if ok {
		jobName = id.JobName
	}
	e.broker.Publish(&events.Event{
		Type: events.EventTaskFailed, JobName: jobName, TaskID: status.TaskID, Timestamp: time.Now(),
		Message: "killed",
	})
}

// replaceJobLocked is a graph replace + persist with no stream side effects,
// used by the lifecycle handlers when rewriting counters on a job whose
// schedule is unchanged. Callers must hold e.mu.
func (e *Engine) replaceJobLocked(old, newJob *types.Job) error {
	if err := e.graph.ReplaceVertex(old, newJob); err != nil {
		return err
	}
	return e.persistJob(newJob)
}

// processDependenciesLocked enqueues a task due at taskDate (dispatched at
// once if taskDate is not in the future) for every child that has become
// executable, skipping disabled children. Callers must hold e.mu.
func (e *Engine) processDependenciesLocked(jobName string, taskDate time.Time) {
	for _, childName := range e.graph.GetExecutableChildren(jobName) {
		child, ok := e.graph.LookupVertex(childName)
		if !ok || child.Disabled {
			continue
		}
		task := &types.ScheduledTask{
			ID:           taskid.New(child.Name, taskDate, 0),
			Due:          taskDate,
			JobName:      child.Name,
			Attempt:      0,
			HighPriority: child.HighPriority,
		}
		delay := taskDate.Sub(e.clock())
		if delay < 0 {
			delay = 0
		}
		if err := e.tasks.ScheduleAt(task, delay); err != nil {
			log.WithJobName(child.Name).Error().Err(err).Msg("schedule dependency-triggered task failed")
			continue
		}
		metrics.TasksScheduled.WithLabelValues(child.Name).Inc()
	}
}
