// Package graph is the job DAG behind dependency-based jobs: which jobs are
// parents of which, and how many of a job's parents have completed since it
// last fired.
package graph
