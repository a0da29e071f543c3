// Package ondisk persists the incremental query cache as a single compact file.
//
// The file starts with a magic string and a format version, followed by a small
// header that can be read without touching the rest. The body holds the dependency
// graph, the encoded results and the cached diagnostics, compressed with snappy.
package ondisk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	magic = "QRYCACHE"
	// formatVersion changes whenever the body layout does.
	formatVersion uint64 = 1
)

// Store implements ports.IncrementalStore.
type Store struct {
	buildVersion string
}

// NewStore creates a store that only accepts caches written by the same build version.
func NewStore(buildVersion string) *Store {
	return &Store{buildVersion: buildVersion}
}

// Load reads the cache below root. A missing cache returns nil, nil.
func (s *Store) Load(root string) (*domain.SerializedGraph, error) {
	path := domain.CacheFilePath(root)
	//nolint:gosec // Path is constructed from the workspace root
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "path", path)
	}

	h, body, err := s.split(data)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}

	raw, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorrupt, err.Error()), "path", path)
	}
	g, err := decodeBody(raw, h.Nodes)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorrupt, err.Error()), "path", path)
	}
	g.BuildVersion = h.BuildVersion
	g.SessionID = h.SessionID
	g.CreatedAt = h.CreatedAt

	if err := g.Validate(); err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return g, nil
}

// Save writes the cache below root through a temporary file, so readers never see a
// partially written cache.
func (s *Store) Save(root string, g *domain.SerializedGraph) error {
	path := domain.CacheFilePath(root)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "path", dir)
	}

	buildVersion := g.BuildVersion
	if buildVersion == "" {
		buildVersion = s.buildVersion
	}
	hdr := appendHeader(nil, header{
		BuildVersion: buildVersion,
		SessionID:    g.SessionID,
		CreatedAt:    g.CreatedAt,
		Nodes:        uint64(g.Len()),
	})

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write(binary.AppendUvarint(nil, formatVersion))
	buf.Write(binary.AppendUvarint(nil, uint64(len(hdr))))
	buf.Write(hdr)
	buf.Write(snappy.Encode(nil, encodeBody(g)))

	tmp, err := os.CreateTemp(dir, "query-cache-*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", dir)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", tmp.Name())
	}
	if err := tmp.Chmod(domain.FilePerm); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", path)
	}
	return nil
}

// Remove deletes the cache below root.
func (s *Store) Remove(root string) error {
	path := domain.CacheFilePath(root)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", path)
	}
	return nil
}

// Stat describes the cache below root from its header alone.
func (s *Store) Stat(root string) (domain.CacheInfo, error) {
	path := domain.CacheFilePath(root)
	info := domain.CacheInfo{Path: path}

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "path", path)
	}
	info.Exists = true
	info.Size = fi.Size()
	info.ModTime = fi.ModTime()

	//nolint:gosec // Path is constructed from the workspace root
	data, err := os.ReadFile(path)
	if err != nil {
		return info, zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "path", path)
	}
	h, _, err := readHeader(data)
	if err != nil {
		return info, zerr.With(err, "path", path)
	}
	info.SessionID = h.SessionID
	info.BuildVersion = h.BuildVersion
	info.CreatedAt = h.CreatedAt
	return info, nil
}

// split parses the preamble and header and returns the compressed body.
func (s *Store) split(data []byte) (header, []byte, error) {
	h, body, err := readHeader(data)
	if err != nil {
		return h, nil, err
	}
	if h.BuildVersion != s.buildVersion {
		return h, nil, zerr.With(zerr.With(domain.ErrCacheVersionMismatch, "cached", h.BuildVersion),
			"current", s.buildVersion)
	}
	return h, body, nil
}

func readHeader(data []byte) (header, []byte, error) {
	if !bytes.HasPrefix(data, []byte(magic)) {
		return header{}, nil, domain.ErrCacheVersionMismatch
	}
	data = data[len(magic):]

	version, n := binary.Uvarint(data)
	if n <= 0 {
		return header{}, nil, zerr.Wrap(domain.ErrCacheCorrupt, "truncated format version")
	}
	if version != formatVersion {
		return header{}, nil, zerr.With(domain.ErrCacheVersionMismatch, "format", version)
	}
	data = data[n:]

	size, n := binary.Uvarint(data)
	if n <= 0 || size > uint64(len(data)-n) {
		return header{}, nil, zerr.Wrap(domain.ErrCacheCorrupt, "truncated header")
	}
	data = data[n:]

	h, err := parseHeader(data[:size])
	if err != nil {
		return header{}, nil, zerr.Wrap(domain.ErrCacheCorrupt, err.Error())
	}
	return h, data[size:], nil
}
