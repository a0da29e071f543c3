package domain

import "go.trai.ch/zerr"

var (
	// ErrCycleDetected is matched by every *CycleError.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrDeadlock is returned to blocked queries when worker threads wait on each other
	// and no query cycle explains it.
	ErrDeadlock = zerr.New("deadlock detected between query threads")

	// ErrMissingProvider is returned when a query kind has no provider.
	ErrMissingProvider = zerr.New("no provider registered for query")

	// ErrInputNotFed is returned when an input query is read before it was fed.
	ErrInputNotFed = zerr.New("input query was not fed")

	// ErrInputAlreadyFed is returned when an input key is fed twice in one session.
	ErrInputAlreadyFed = zerr.New("input query was already fed")

	// ErrNotAnInput is returned when feeding a kind that is not an input kind.
	ErrNotAnInput = zerr.New("query kind is not an input")

	// ErrInvalidKind is raised for a query kind definition that cannot be registered.
	ErrInvalidKind = zerr.New("invalid query kind definition")

	// ErrDuplicateKind is returned when two query kinds share a name.
	ErrDuplicateKind = zerr.New("query kind already registered")

	// ErrUnhashableKey is raised when a key type has no stable hashing.
	ErrUnhashableKey = zerr.New("query key type has no stable hash")

	// ErrAlreadyCompleted is raised when a cached key is completed twice.
	ErrAlreadyCompleted = zerr.New("query result already cached")

	// ErrQueryPanicked is returned to waiters of a query whose provider panicked.
	ErrQueryPanicked = zerr.New("query provider panicked")

	// ErrDelayedBug is returned at session end when delayed bugs were recorded
	// and no error was reported.
	ErrDelayedBug = zerr.New("delayed bug reported without any errors")

	// ErrSessionFailed is returned when a session reported errors.
	ErrSessionFailed = zerr.New("session reported errors")

	// ErrEncodeFailed is returned when a cached result cannot be encoded.
	ErrEncodeFailed = zerr.New("failed to encode query result")

	// ErrDecodeFailed is returned when a cached result cannot be decoded.
	ErrDecodeFailed = zerr.New("failed to decode query result")

	// ErrCacheVersionMismatch is returned when an incremental cache file was written by a
	// different format or build.
	ErrCacheVersionMismatch = zerr.New("incremental cache version mismatch")

	// ErrCacheCorrupt is returned when an incremental cache file cannot be parsed.
	ErrCacheCorrupt = zerr.New("incremental cache is corrupt")

	// ErrCacheReadFailed is returned when the incremental cache cannot be read.
	ErrCacheReadFailed = zerr.New("failed to read incremental cache")

	// ErrCacheWriteFailed is returned when the incremental cache cannot be written.
	ErrCacheWriteFailed = zerr.New("failed to write incremental cache")

	// ErrCacheCreateFailed is returned when the cache directory cannot be created.
	ErrCacheCreateFailed = zerr.New("failed to create incremental cache directory")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigInvalid is returned when the config has invalid values.
	ErrConfigInvalid = zerr.New("invalid configuration")

	// ErrConfigWriteFailed is returned when the config file cannot be written.
	ErrConfigWriteFailed = zerr.New("failed to write config file")

	// ErrSourceReadFailed is returned when a source file cannot be read.
	ErrSourceReadFailed = zerr.New("failed to read source file")

	// ErrNoSources is returned when a build finds no source files.
	ErrNoSources = zerr.New("no source files found")

	// ErrBuildFailed is returned when a build session fails.
	ErrBuildFailed = zerr.New("build failed")

	// ErrMetricsWriteFailed is returned when the metrics textfile cannot be written.
	ErrMetricsWriteFailed = zerr.New("failed to write metrics file")

	// ErrWatcherFailed is returned when the file watcher cannot be started.
	ErrWatcherFailed = zerr.New("failed to watch files")
)
