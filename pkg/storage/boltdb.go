package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/schedulerd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs         = []byte("jobs")
	bucketPendingTasks = []byte("pending_tasks")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the scheduler's database file
// under dataDir and ensures its buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "scheduler.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketJobs, bucketPendingTasks} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveJob is an upsert keyed by job name.
func (s *BoltStore) SaveJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.Name), data)
	})
}

func (s *BoltStore) GetJob(name string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("job not found: %s", name)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	return jobs, err
}

func (s *BoltStore) RemoveJob(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.Delete([]byte(name))
	})
}

// SavePendingTask is an upsert keyed by task id.
func (s *BoltStore) SavePendingTask(task *types.ScheduledTask) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPendingTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetPendingTask(id string) (*types.ScheduledTask, error) {
	var task types.ScheduledTask
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPendingTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("pending task not found: %s", id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListPendingTasks() ([]*types.ScheduledTask, error) {
	var tasks []*types.ScheduledTask
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPendingTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.ScheduledTask
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) RemovePendingTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPendingTasks)
		return b.Delete([]byte(id))
	})
}
