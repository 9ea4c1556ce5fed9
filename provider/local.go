package provider

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalProvider implements Provider for posix-compliant local filesystems.
type LocalProvider struct {
	basePath         string
	preserveMetadata bool
}

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{
		basePath:         basePath,
		preserveMetadata: true,
	}
}

// WithPreserveMetadata controls whether the mode and mtime of the source are
// applied to written files.
func (p *LocalProvider) WithPreserveMetadata(preserve bool) *LocalProvider {
	p.preserveMetadata = preserve
	return p
}

func (p *LocalProvider) resolve(path string) string {
	if p.basePath == "" {
		return filepath.FromSlash(path)
	}
	return filepath.Join(p.basePath, filepath.Clean(filepath.FromSlash(path)))
}

func notExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return errors.Join(ErrNotExist, err)
	}
	return err
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return nil, notExist(err)
	}
	return wrapOSFileInfo(info), nil
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p.resolve(path))
	if err != nil {
		return nil, notExist(err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // skip files that disappeared between ReadDir and Info
		}
		infos = append(infos, wrapOSFileInfo(info))
	}
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(p.resolve(path))
	if err != nil {
		return nil, notExist(err)
	}
	return f, nil
}

func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}

	mode := os.FileMode(0644)
	if m, ok := metadata.(interface{ Mode() os.FileMode }); ok && p.preserveMetadata && m.Mode() != 0 {
		mode = m.Mode()
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}

	w := &localWriteCloser{File: file, fullPath: fullPath}
	if p.preserveMetadata {
		w.metadata = metadata
	}
	return w, nil
}

func (p *LocalProvider) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(p.resolve(path), 0755)
}

func (p *LocalProvider) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return notExist(os.Remove(p.resolve(path)))
}

// Close is a no-op; the local filesystem holds no connection.
func (p *LocalProvider) Close() error { return nil }

// localWriteCloser applies the source mtime on close, since writing updates it.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}

	if l.metadata != nil && !l.metadata.ModTime().IsZero() {
		// Ignore errors on applying timestamp
		_ = os.Chtimes(l.fullPath, time.Now(), l.metadata.ModTime())
	}
	return nil
}

type localFileInfo struct {
	fileInfo
	mode os.FileMode
}

func (l *localFileInfo) Mode() os.FileMode { return l.mode }

func wrapOSFileInfo(info os.FileInfo) FileInfo {
	return &localFileInfo{
		fileInfo: fileInfo{
			name:    info.Name(),
			size:    info.Size(),
			isDir:   info.IsDir(),
			modTime: info.ModTime(),
		},
		mode: info.Mode().Perm(),
	}
}
