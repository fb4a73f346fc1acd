/*
Package metrics defines and registers schedulerd's Prometheus metrics:
job/task counters and gauges updated inline by pkg/engine, raft gauges
polled by Collector from pkg/leader, and API request metrics, which are
registered but not updated by any package. Metrics are exposed via
Handler() for scraping.
*/
package metrics
