/*
Package schedule implements ISO-8601 repeating-interval expressions
("Rn/start-instant/period") and the lazy Stream built on top of them.

A Stream never eagerly expands into all its firings; next/tail only ever
look one recurrence ahead, which is what lets the engine run the horizon
iteration (pkg/engine) without tracking more than one Stream per
schedule-based job at a time.
*/
package schedule
