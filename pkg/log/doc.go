/*
Package log wraps zerolog for schedulerd: a package-level Logger
initialized once via Init(Config), component/job/task child loggers
(WithComponent, WithJobName, WithTaskID), and package-level
Info/Debug/Warn/Error/Errorf/Fatal convenience functions. Fatal exits
the process after logging, matching zerolog's own Fatal() behavior.
*/
package log
