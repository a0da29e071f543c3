package domain

// QueryEvent is what happened to one query request. Events feed metrics and tracing.
type QueryEvent string

const (
	// EventHit is a request answered from the in-memory cache.
	EventHit QueryEvent = "hit"
	// EventExecuted is a request that ran the provider.
	EventExecuted QueryEvent = "executed"
	// EventGreen is a node reused from the previous session.
	EventGreen QueryEvent = "green"
	// EventRed is a node whose previous result could not be reused.
	EventRed QueryEvent = "red"
	// EventDiskLoad is a green node whose value was decoded from the on-disk cache.
	EventDiskLoad QueryEvent = "disk_load"
	// EventWaited is a request that blocked on another thread's computation.
	EventWaited QueryEvent = "waited"
	// EventCycle is a request that hit a query cycle.
	EventCycle QueryEvent = "cycle"
	// EventDeadlock is a deadlock resolved by the watcher.
	EventDeadlock QueryEvent = "deadlock"
	// EventFailed is a provider that returned an error.
	EventFailed QueryEvent = "failed"
	// EventFed is an input value fed into the engine.
	EventFed QueryEvent = "fed"
)

// IsReuse reports whether the event avoided running a provider.
func (e QueryEvent) IsReuse() bool {
	switch e {
	case EventHit, EventGreen, EventDiskLoad:
		return true
	default:
		return false
	}
}

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// LogLevelFor maps a diagnostic level to the log level it is logged at.
func LogLevelFor(level DiagLevel) LogLevel {
	switch level {
	case DiagError, DiagDelayedBug:
		return LogLevelError
	case DiagWarning:
		return LogLevelWarn
	default:
		return LogLevelInfo
	}
}
