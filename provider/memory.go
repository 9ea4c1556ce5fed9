package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Provider = (*MemProvider)(nil)

// MemProvider is an in-memory backend. It is safe for concurrent use and is
// what the engine and session tests run transfers against.
type MemProvider struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	gate     chan struct{}
	failRead func(path string) error
	opened   int
	closed   bool
}

// NewMemProvider returns an empty backend containing only "/".
func NewMemProvider() *MemProvider {
	return &MemProvider{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

func memClean(p string) string {
	return path.Clean("/" + p)
}

// AddFile stores data at p, creating parent directories.
func (m *MemProvider) AddFile(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = memClean(p)
	for _, dir := range parentDirs(p) {
		m.dirs[dir] = true
	}
	m.files[p] = append([]byte(nil), data...)
}

// AddDir creates a directory and its parents.
func (m *MemProvider) AddDir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = memClean(p)
	for _, dir := range parentDirs(p) {
		m.dirs[dir] = true
	}
	m.dirs[p] = true
}

// File returns a copy of the content stored at p.
func (m *MemProvider) File(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[memClean(p)]
	return append([]byte(nil), data...), ok
}

// HasDir reports whether p is a directory.
func (m *MemProvider) HasDir(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[memClean(p)]
}

// SetGate makes OpenRead block until gate is closed. Pass nil to clear.
func (m *MemProvider) SetGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// SetReadFailure installs a hook whose non-nil result fails OpenRead.
func (m *MemProvider) SetReadFailure(fn func(path string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = fn
}

// Opened returns how many reads have been started.
func (m *MemProvider) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Closed reports whether Close was called.
func (m *MemProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemProvider) Stat(ctx context.Context, p string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p = memClean(p)
	if data, ok := m.files[p]; ok {
		return &fileInfo{name: path.Base(p), size: int64(len(data))}, nil
	}
	if m.dirs[p] {
		return &fileInfo{name: path.Base(p), isDir: true}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotExist, p)
}

func (m *MemProvider) List(ctx context.Context, p string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p = memClean(p)
	if !m.dirs[p] {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, p)
	}

	var infos []FileInfo
	for dir := range m.dirs {
		if dir != p && path.Dir(dir) == p {
			infos = append(infos, &fileInfo{name: path.Base(dir), isDir: true})
		}
	}
	for file, data := range m.files {
		if path.Dir(file) == p {
			infos = append(infos, &fileInfo{name: path.Base(file), size: int64(len(data)), modTime: time.Time{}})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (m *MemProvider) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	gate, failRead := m.gate, m.failRead
	m.opened++
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failRead != nil {
		if err := failRead(memClean(p)); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[memClean(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemProvider) OpenWrite(ctx context.Context, p string, _ FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memWriter{m: m, path: memClean(p)}, nil
}

func (m *MemProvider) Mkdir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.AddDir(p)
	return nil
}

func (m *MemProvider) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p = memClean(p)
	if _, ok := m.files[p]; !ok {
		return fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	delete(m.files, p)
	return nil
}

func (m *MemProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memWriter struct {
	m    *MemProvider
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if strings.HasSuffix(w.path, "/") {
		return fmt.Errorf("cannot write to directory path %q", w.path)
	}
	w.m.AddFile(w.path, w.buf.Bytes())
	return nil
}
