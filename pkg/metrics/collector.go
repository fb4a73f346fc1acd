package metrics

import "time"

// JobSource is the subset of the engine's state the collector polls. It is
// a narrow interface, not *engine.Engine directly, so this package never
// imports pkg/engine (which itself imports pkg/metrics).
type JobSource interface {
	JobCount() int
	DisabledJobCount() int
}

// RaftSource is the subset of the leader lifecycle's state the collector
// polls.
type RaftSource interface {
	IsLeader() bool
	AppliedIndex() uint64
	PeerCount() int
}

// Collector periodically samples engine and raft state into gauges that
// Prometheus scrapes; counters and histograms are updated inline by their
// owners instead.
type Collector struct {
	jobs   JobSource
	raft   RaftSource
	stopCh chan struct{}
}

// NewCollector builds a Collector. raft may be nil before the leader
// lifecycle has started; the collector simply skips raft gauges until then.
func NewCollector(jobs JobSource, raft RaftSource) *Collector {
	return &Collector{jobs: jobs, raft: raft, stopCh: make(chan struct{})}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectJobMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectJobMetrics() {
	if c.jobs == nil {
		return
	}
	JobsRegistered.Set(float64(c.jobs.JobCount()))
	JobsDisabled.Set(float64(c.jobs.DisabledJobCount()))
}

func (c *Collector) collectRaftMetrics() {
	if c.raft == nil {
		return
	}
	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftAppliedIndex.Set(float64(c.raft.AppliedIndex()))
	RaftPeers.Set(float64(c.raft.PeerCount()))
}
