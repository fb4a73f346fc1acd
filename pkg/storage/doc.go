/*
Package storage provides BoltDB-backed persistence for jobs and pending
tasks.

BoltStore keeps two buckets, jobs and pending_tasks, both JSON blobs keyed by
name/id, upserted via Put. Pending tasks are the scheduler's own durable
record of outstanding work, replayed into the task manager on startup ahead
of jobs (see LoadTasks/LoadJobs) so a crash never loses an in-flight firing.

# Usage

	store, err := storage.NewBoltStore("/var/lib/schedulerd")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	err = store.SaveJob(job)
	jobs, err := store.ListJobs()
*/
package storage
