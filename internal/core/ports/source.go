package ports

//go:generate go run go.uber.org/mock/mockgen -source=source.go -destination=mocks/mock_source.go -package=mocks

// SourceReader discovers and reads the source files that are fed into the engine.
type SourceReader interface {
	// Discover expands roots (files, directories or globs) into a sorted list of
	// slash-separated source paths.
	Discover(roots []string) ([]string, error)
	// ReadSource returns the content of one source file.
	ReadSource(path string) ([]byte, error)
}

// Hasher computes content hashes of files.
type Hasher interface {
	// ComputeFileHash computes the hash of a file's content.
	ComputeFileHash(path string) (uint64, error)
}
