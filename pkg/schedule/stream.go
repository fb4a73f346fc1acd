package schedule

// Stream is an immutable descriptor for the remaining planned firings of
// one schedule-based job. Its head is (schedule-expression, job-name,
// time-zone); its tail is either another Stream (one recurrence consumed)
// or nothing, once the expression parses to zero recurrences or fails to
// parse.
type Stream struct {
	Expr     string
	JobName  string
	TimeZone string
}

// New builds a stream from a job's current schedule expression.
func New(expr, jobName, timeZone string) *Stream {
	return &Stream{Expr: expr, JobName: jobName, TimeZone: timeZone}
}

// Head returns the stream's (schedule-expression, job-name, time-zone) triple.
func (s *Stream) Head() (expr, jobName, timeZone string) {
	return s.Expr, s.JobName, s.TimeZone
}

// Tail re-serializes the expression with recurrences-1 and start advanced by
// one period, returning false if the head does not parse or is exhausted.
func (s *Stream) Tail() (*Stream, bool) {
	parsed, ok := ParseExpression(s.Expr, s.TimeZone)
	if !ok || parsed.Recurrences == 0 {
		return nil, false
	}

	next := parsed.Recurrences
	if next != Unbounded {
		next--
	}
	newStart := parsed.Start.Add(parsed.Interval)
	return &Stream{
		Expr:     FormatExpression(next, newStart, parsed.Interval),
		JobName:  s.JobName,
		TimeZone: s.TimeZone,
	}, true
}
