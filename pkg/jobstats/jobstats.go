// Package jobstats is the Job Stats history sink: a capability distinct
// from the scheduler core but tightly coupled to it via the Observer. It
// keeps a live jobName -> {idle, queued, running} state table and appends
// per-task history rows to a durable store, plus a best-effort
// elements-processed counter for data-processing jobs.
package jobstats

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/schedulerd/pkg/log"
	bolt "go.etcd.io/bbolt"
)

// State is a job's live scheduling state, reported independently of the
// task history rows.
type State string

const (
	StateIdle    State = "idle"
	StateQueued  State = "queued"
	StateRunning State = "running"
)

// rank orders states from idle to running. SetState does not consult it; it
// checks the running -> queued case directly.
var rank = map[State]int{StateIdle: 0, StateQueued: 1, StateRunning: 2}

// TaskEvent is one row of task history.
type TaskEvent struct {
	TaskID      string
	JobName     string
	JobOwner    string
	JobSchedule string
	JobParents  []string
	Timestamp   time.Time
	TaskState   string
	SlaveID     string
	Message     string
	Attempt     int
	IsFailure   bool
}

// HistoryStore persists task history and per-task element counts. All
// operations are best-effort: implementations never propagate a connection
// failure to callers, since scheduling must never fail because history is
// unavailable (spec error-kind (a)).
type HistoryStore interface {
	RecordTaskEvent(evt TaskEvent)
	IncrementElementsProcessed(jobName, taskID string, delta int64)
	SetState(jobName string, next State)
	Close() error
}

// BoltHistoryStore implements HistoryStore on a bbolt database: a
// task_history bucket keyed "taskID|unixNanoTimestamp" and a
// job_stats_counters bucket keyed "jobName|taskID" holding an accumulated
// int64 count. It keeps the jobName -> State table in a sync.Map rather
// than under its own mutex, since that table is read and written
// concurrently from task-status callbacks arriving on separate goroutines.
type BoltHistoryStore struct {
	dbMu sync.RWMutex
	db   *bolt.DB
	path string

	state sync.Map // jobName -> State
}

var (
	bucketTaskHistory = []byte("task_history")
	bucketJobCounters = []byte("job_stats_counters")
)

// NewBoltHistoryStore opens (creating if absent) the history database at path.
func NewBoltHistoryStore(path string) (*BoltHistoryStore, error) {
	s := &BoltHistoryStore{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BoltHistoryStore) open() error {
	db, err := bolt.Open(s.path, 0600, nil)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTaskHistory, bucketJobCounters} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}
	s.dbMu.Lock()
	s.db = db
	s.dbMu.Unlock()
	return nil
}

// reset reopens the database after a failed operation, mirroring the
// "connection loss resets the session" error-handling rule for the history
// store.
func (s *BoltHistoryStore) reset() {
	s.dbMu.Lock()
	if s.db != nil {
		s.db.Close()
	}
	s.dbMu.Unlock()
	if err := s.open(); err != nil {
		log.WithComponent("jobstats").Error().Err(err).Msg("failed to reopen history store")
	}
}

// SetState applies the no-downgrade rule: running never reverts to queued.
func (s *BoltHistoryStore) SetState(jobName string, next State) {
	for {
		curAny, loaded := s.state.LoadOrStore(jobName, next)
		if !loaded {
			return
		}
		cur := curAny.(State)
		if cur == StateRunning && next == StateQueued {
			return
		}
		if s.state.CompareAndSwap(jobName, cur, next) {
			return
		}
	}
}

// GetState returns a job's live state, defaulting to idle.
func (s *BoltHistoryStore) GetState(jobName string) State {
	v, ok := s.state.Load(jobName)
	if !ok {
		return StateIdle
	}
	return v.(State)
}

func taskHistoryKey(evt TaskEvent) []byte {
	return []byte(fmt.Sprintf("%s|%d", evt.TaskID, evt.Timestamp.UnixNano()))
}

// RecordTaskEvent appends a history row. Failures are logged and the
// session reset; they are never returned to the caller.
func (s *BoltHistoryStore) RecordTaskEvent(evt TaskEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	s.dbMu.RLock()
	db := s.db
	s.dbMu.RUnlock()

	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskHistory)
		data, err := encodeTaskEvent(evt)
		if err != nil {
			return err
		}
		return b.Put(taskHistoryKey(evt), data)
	})
	if err != nil {
		log.WithComponent("jobstats").Error().Err(err).Str("task_id", evt.TaskID).Msg("record task event failed")
		s.reset()
	}
}

// IncrementElementsProcessed accumulates a data-processing job's per-task
// element count. The increment itself is non-idempotent (a duplicate
// callback double-counts), matching the underlying counter semantics; only
// the presence of the (job, task) row in the main history table is
// idempotent.
func (s *BoltHistoryStore) IncrementElementsProcessed(jobName, taskID string, delta int64) {
	s.dbMu.RLock()
	db := s.db
	s.dbMu.RUnlock()

	key := []byte(fmt.Sprintf("%s|%s", jobName, taskID))
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobCounters)
		var current int64
		if raw := b.Get(key); raw != nil {
			current = decodeCounter(raw)
		}
		return b.Put(key, encodeCounter(current+delta))
	})
	if err != nil {
		log.WithComponent("jobstats").Error().Err(err).Str("job_name", jobName).Msg("increment counter failed")
		s.reset()
	}
}

// Close closes the underlying database.
func (s *BoltHistoryStore) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
