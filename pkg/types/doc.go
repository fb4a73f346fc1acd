/*
Package types defines the core data model shared across the scheduler: the
job record (schedule-based or dependency-based, tagged by Kind rather than
through an inheritance hierarchy), the transient ScheduledTask, and the
TaskStatus shape delivered by the resource-manager driver's callbacks.

These types carry no behavior beyond small helpers (Clone, ParentNames,
IsScheduleBased/IsDependencyBased); state transitions live in pkg/engine,
and storage concerns live in pkg/storage.
*/
package types
