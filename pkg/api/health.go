package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/schedulerd/pkg/engine"
	"github.com/cuemby/schedulerd/pkg/metrics"
)

// RaftStatus is the subset of the leader lifecycle the health surface reads;
// satisfied by *leader.Lifecycle, kept as a narrow interface here the same
// way pkg/metrics.RaftSource avoids importing pkg/leader back into pkg/api.
type RaftStatus interface {
	IsLeader() bool
	GetLeader() string
}

// HealthServer provides HTTP health, readiness, job-listing, and metrics
// endpoints for a single schedulerd node.
type HealthServer struct {
	engine *engine.Engine
	raft   RaftStatus
	mux    *http.ServeMux
}

// NewHealthServer builds the admin HTTP surface. raft may be nil before the
// leader lifecycle has started; readiness then reports "not initialized".
func NewHealthServer(eng *engine.Engine, raft RaftStatus) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{engine: eng, raft: raft, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/jobs", hs.jobsHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start blocks serving addr until the listener fails.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// GetHandler returns the HTTP handler, for embedding in another server.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

// HealthResponse is the /health liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready readiness payload.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness check: 200 if the process is alive, full stop.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler reports whether this node knows of an elected leader; a node
// that is itself the leader is also required to have a running engine.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	switch {
	case hs.raft == nil:
		checks["raft"] = "not initialized"
		ready = false
		message = "leader lifecycle not started"
	case hs.raft.IsLeader():
		checks["raft"] = "leader"
	default:
		if leader := hs.raft.GetLeader(); leader != "" {
			checks["raft"] = "follower"
		} else {
			checks["raft"] = "no leader elected"
			ready = false
			message = "waiting for leader election"
		}
	}

	if hs.engine.IsRunning() {
		checks["engine"] = "running"
	} else {
		checks["engine"] = "stopped"
		if hs.raft != nil && hs.raft.IsLeader() {
			ready = false
			if message == "" {
				message = "leader but engine not running"
			}
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks, Message: message})
}

// JobSummary is the /jobs listing shape for one job.
type JobSummary struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Disabled     bool   `json:"disabled"`
	SuccessCount int64  `json:"successCount"`
	ErrorCount   int64  `json:"errorCount"`
}

// jobsHandler lists every job currently registered on this node. Only the
// leader hydrates its graph, so on a follower the list is empty.
func (hs *HealthServer) jobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs := hs.engine.Jobs()
	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, JobSummary{
			Name:         job.Name,
			Kind:         string(job.Kind),
			Disabled:     job.Disabled,
			SuccessCount: job.SuccessCount,
			ErrorCount:   job.ErrorCount,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
