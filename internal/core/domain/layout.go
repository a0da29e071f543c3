package domain

import "path/filepath"

const (
	// QuarryDirName is the name of the internal workspace directory.
	QuarryDirName = ".quarry"

	// IncrementalDirName is the name of the incremental cache directory.
	IncrementalDirName = "incremental"

	// CacheFileName is the name of the persisted query cache.
	CacheFileName = "query-cache.bin"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "quarry.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultIncrementalPath returns the default directory of the incremental cache.
// It joins .quarry and incremental.
func DefaultIncrementalPath() string {
	return filepath.Join(QuarryDirName, IncrementalDirName)
}

// CacheFilePath returns the path of the query cache file below root.
func CacheFilePath(root string) string {
	return filepath.Join(root, DefaultIncrementalPath(), CacheFileName)
}
