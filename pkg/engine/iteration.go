package engine

import (
	"fmt"
	"time"

	"github.com/cuemby/schedulerd/internal/taskid"
	"github.com/cuemby/schedulerd/pkg/events"
	"github.com/cuemby/schedulerd/pkg/log"
	"github.com/cuemby/schedulerd/pkg/metrics"
	"github.com/cuemby/schedulerd/pkg/schedule"
	"github.com/cuemby/schedulerd/pkg/types"
)

// iterationLocked advances every stream against now, handing produced tasks
// to the Task Manager and dropping exhausted streams. Callers must hold e.mu.
func (e *Engine) iterationLocked(now time.Time) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IterationDuration)

	next := make(map[string]*schedule.Stream, len(e.streams))
	for jobName, stream := range e.streams {
		surviving, produced := e.advanceStream(now, stream)
		for _, task := range produced {
			delay := task.Due.Sub(now)
			if delay < 0 {
				delay = 0
			}
			if err := e.tasks.ScheduleAt(task, delay); err != nil {
				log.WithJobName(jobName).Error().Err(err).Msg("schedule produced task failed")
				continue
			}
			metrics.TasksScheduled.WithLabelValues(jobName).Inc()
		}
		if surviving != nil {
			next[jobName] = surviving
			if job, ok := e.graph.LookupVertex(jobName); ok {
				rewritten := job.Clone()
				rewritten.Schedule, _, _ = surviving.Head()
				e.vertexOnly(job, rewritten)
			}
		}
	}
	e.streams = next
}

// vertexOnly swaps the stored vertex without touching streams or running a
// nested iteration, used by iterationLocked to persist a schedule rewrite
// without recursing back into updateJobLocked's stream-rebuild branch.
func (e *Engine) vertexOnly(old, newJob *types.Job) {
	if err := e.graph.ReplaceVertex(old, newJob); err != nil {
		log.WithJobName(old.Name).Error().Err(err).Msg("replace vertex after schedule rewrite failed")
		return
	}
	if err := e.persistJob(newJob); err != nil {
		log.WithJobName(old.Name).Error().Err(err).Msg("persist schedule rewrite failed")
	}
}

// advanceStream runs next(now, stream) in a loop (the spec's "tail-recursion")
// until it either produces a task or the stream is exhausted/unknown/
// unparseable, returning the surviving stream (nil if none) and every task
// produced along the way (normally at most one, but a resumed stream whose
// head keeps missing its window can, in principle, still only ever emit one
// task per call since next returns on first emission).
func (e *Engine) advanceStream(now time.Time, stream *schedule.Stream) (*schedule.Stream, []*types.ScheduledTask) {
	var produced []*types.ScheduledTask
	cur := stream
	for {
		if cur == nil {
			return nil, produced
		}
		surviving, task, cont := e.next(now, cur)
		if task != nil {
			produced = append(produced, task)
			return surviving, produced
		}
		if !cont {
			return surviving, produced
		}
		cur = surviving
	}
}

// next is the decision kernel of spec §4.3. It returns the stream to keep
// (nil if the stream should be dropped), a produced task (nil if none), and
// whether the caller should continue advancing (true only for the
// missed-firing recursion case).
func (e *Engine) next(now time.Time, stream *schedule.Stream) (*schedule.Stream, *types.ScheduledTask, bool) {
	expr, jobName, tz := stream.Head()

	job, ok := e.graph.LookupVertex(jobName)
	if !ok {
		return nil, nil, false
	}

	parsed, ok := schedule.ParseExpression(expr, tz)
	if !ok {
		return stream, nil, false
	}

	if parsed.Recurrences == 0 {
		return nil, nil, false
	}

	windowBegin := now.Add(-job.Epsilon)
	windowEnd := now.Add(e.cfg.ScheduleHorizon)
	nextFire := parsed.Start

	switch {
	case !nextFire.Before(windowBegin) && !nextFire.After(windowEnd):
		tail, _ := stream.Tail()
		task := &types.ScheduledTask{
			ID:           taskid.New(jobName, nextFire, 0),
			Due:          nextFire,
			JobName:      jobName,
			Attempt:      0,
			HighPriority: job.HighPriority,
		}
		return tail, task, false

	case !nextFire.Before(now):
		return stream, nil, false

	default:
		e.broker.Publish(&events.Event{
			Type:      events.EventTaskSkipped,
			JobName:   jobName,
			Message:   fmt.Sprintf("missed firing at %s", nextFire.Format(time.RFC3339)),
			Timestamp: now,
		})
		tail, hasTail := stream.Tail()
		if !hasTail {
			return nil, nil, false
		}
		return tail, nil, true
	}
}
