package provider

import (
	"context"
	"errors"
	"io"
	"path"
	"time"
)

// ErrNotExist is returned when a path is absent on the backend.
var ErrNotExist = errors.New("path does not exist")

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider is the storage backend behind one connection of a session.
// Local storage, FTP and S3 implement it.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes, creating missing parents.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)

	// Mkdir creates a directory and any missing parents.
	Mkdir(ctx context.Context, path string) error

	// Remove deletes a single file.
	Remove(ctx context.Context, path string) error

	// Close releases the backend (network connection, client).
	Close() error
}

type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *fileInfo) Name() string       { return f.name }
func (f *fileInfo) Size() int64        { return f.size }
func (f *fileInfo) IsDir() bool        { return f.isDir }
func (f *fileInfo) ModTime() time.Time { return f.modTime }

// NewFileInfo builds a FileInfo from raw values.
func NewFileInfo(name string, size int64, isDir bool, modTime time.Time) FileInfo {
	return &fileInfo{name: name, size: size, isDir: isDir, modTime: modTime}
}

// parentDirs returns every ancestor of p, outermost first, excluding the root.
func parentDirs(p string) []string {
	var dirs []string
	for dir := path.Dir(path.Clean(p)); dir != "/" && dir != "." && dir != ""; dir = path.Dir(dir) {
		dirs = append([]string{dir}, dirs...)
	}
	return dirs
}
