// Package taskqueue is the Task Manager boundary between the scheduler
// engine and the cluster resource-manager driver.
package taskqueue
