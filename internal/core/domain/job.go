package domain

// JobID identifies one in-flight query execution. Zero is never assigned.
type JobID uint64

// JobState is the lifecycle state of a query job.
type JobState uint8

const (
	// JobCreated is a registered job whose provider has not started.
	JobCreated JobState = iota
	// JobRunning is a job whose provider is executing.
	JobRunning
	// JobCompleted is a job that produced a value or an error.
	JobCompleted
	// JobCycleDetected is a job whose result was replaced by a cycle fallback.
	JobCycleDetected
	// JobPanicked is a job whose provider panicked.
	JobPanicked
)

// String returns the state name.
func (s JobState) String() string {
	switch s {
	case JobCreated:
		return "created"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobCycleDetected:
		return "cycle_detected"
	case JobPanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// QueryFrame describes one query on a call chain, for diagnostics.
type QueryFrame struct {
	Kind        string
	Description string
	Span        Span
}

// String renders the frame as "kind(description)".
func (f QueryFrame) String() string {
	return f.Kind + "(" + f.Description + ")"
}

// JobInfo is a snapshot of one in-flight job.
type JobInfo struct {
	ID     JobID
	Frame  QueryFrame
	State  JobState
	Parent JobID
	// WaitingOn is the job whose result this job is blocked on, or zero.
	WaitingOn JobID
}
