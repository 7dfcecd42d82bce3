// Package fsutil abstracts the local filesystem so tools that write
// backup artifacts can run against an in-memory one in tests.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileSystem is the subset of filesystem operations the deploy tooling
// needs. OSFileSystem is the real thing; MemoryFileSystem backs tests.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	Exists(name string) bool
}

// OSFileSystem passes every call straight through to the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// memNode is one file or directory in a MemoryFileSystem.
type memNode struct {
	data  []byte
	mode  os.FileMode
	mtime time.Time
}

func (n *memNode) isDir() bool { return n.mode.IsDir() }

// MemoryFileSystem keeps a tree of files and directories in a map keyed
// by cleaned path. Safe for concurrent use.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	nodes map[string]*memNode
}

// NewMemoryFileSystem returns an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{nodes: make(map[string]*memNode)}
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	if n.isDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return append([]byte(nil), n.data...), nil
}

func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clean := filepath.Clean(name)
	if n, ok := m.nodes[clean]; ok && n.isDir() {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrInvalid}
	}
	m.nodes[clean] = &memNode{
		data:  append([]byte(nil), data...),
		mode:  perm,
		mtime: time.Now(),
	}
	return nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clean := filepath.Clean(name)
	n, ok := m.nodes[clean]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return memInfo{base: filepath.Base(clean), node: n}, nil
}

// MkdirAll creates the path and any missing ancestors. Hitting an
// existing file along the way is an error, matching os.MkdirAll.
func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return nil
	}

	prefix := ""
	if filepath.IsAbs(clean) {
		prefix = string(filepath.Separator)
		clean = clean[1:]
	}
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		prefix = filepath.Join(prefix, part)
		if n, ok := m.nodes[prefix]; ok {
			if !n.isDir() {
				return &fs.PathError{Op: "mkdir", Path: prefix, Err: fs.ErrExist}
			}
			continue
		}
		m.nodes[prefix] = &memNode{mode: perm | fs.ModeDir, mtime: time.Now()}
	}
	return nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.nodes[filepath.Clean(name)]
	return ok
}

// memInfo adapts a memNode to fs.FileInfo.
type memInfo struct {
	base string
	node *memNode
}

func (fi memInfo) Name() string       { return fi.base }
func (fi memInfo) Size() int64        { return int64(len(fi.node.data)) }
func (fi memInfo) Mode() os.FileMode  { return fi.node.mode }
func (fi memInfo) ModTime() time.Time { return fi.node.mtime }
func (fi memInfo) IsDir() bool        { return fi.node.isDir() }
func (fi memInfo) Sys() any           { return nil }
