package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

var _ Provider = (*FTPProvider)(nil)

// DefaultFTPTimeout bounds dialing and individual control commands.
const DefaultFTPTimeout = 60 * time.Second

// FTPProvider wraps one FTP control connection. A ServerConn runs one command
// at a time, so a pooled connection is only ever used by a single transfer.
type FTPProvider struct {
	conn *ftp.ServerConn
}

// DialFTP connects and logs in to the server addressed by u. ftps:// uses
// explicit TLS. Missing credentials fall back to anonymous login.
func DialFTP(ctx context.Context, u *url.URL, timeout time.Duration) (*FTPProvider, error) {
	if timeout <= 0 {
		timeout = DefaultFTPTimeout
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if u.Scheme == "ftps" {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: u.Hostname()}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to %s as %s: %w", addr, user, err)
	}

	return &FTPProvider{conn: conn}, nil
}

func (p *FTPProvider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := path.Clean("/" + pth)
	if clean == "/" {
		return &fileInfo{name: "/", isDir: true}, nil
	}

	entries, err := p.List(ctx, path.Dir(clean))
	if err != nil {
		return nil, err
	}
	base := path.Base(clean)
	for _, e := range entries {
		if e.Name() == base {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotExist, pth)
}

func (p *FTPProvider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := p.conn.List(pth)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", pth, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		infos = append(infos, &fileInfo{
			name:    e.Name,
			size:    int64(e.Size),
			isDir:   e.Type == ftp.EntryTypeFolder,
			modTime: e.Time,
		})
	}
	return infos, nil
}

func (p *FTPProvider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := p.conn.Retr(pth)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, pth)
		}
		return nil, fmt.Errorf("failed to retrieve %q: %w", pth, err)
	}
	return resp, nil
}

// OpenWrite creates the missing parents, then streams into a STOR command
// running in the background.
func (p *FTPProvider) OpenWrite(ctx context.Context, pth string, _ FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, dir := range parentDirs(pth) {
		// already-exists replies are expected here
		_ = p.conn.MakeDir(dir)
	}

	pr, pw := io.Pipe()
	errChan := make(chan error, 1)
	go func() {
		err := p.conn.Stor(pth, pr)
		pr.CloseWithError(err)
		errChan <- err
	}()

	return &pipeWriter{pw: pw, errChan: errChan, what: "ftp store"}, nil
}

func (p *FTPProvider) Mkdir(ctx context.Context, pth string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dir := range parentDirs(pth) {
		_ = p.conn.MakeDir(dir)
	}
	if err := p.conn.MakeDir(pth); err != nil {
		if info, statErr := p.Stat(ctx, pth); statErr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("failed to create directory %q: %w", pth, err)
	}
	return nil
}

func (p *FTPProvider) Remove(ctx context.Context, pth string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.Delete(pth); err != nil {
		return fmt.Errorf("failed to delete %q: %w", pth, err)
	}
	return nil
}

// Close sends QUIT and closes the control connection.
func (p *FTPProvider) Close() error {
	return p.conn.Quit()
}

// isNotFound reports a 550 reply.
func isNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}
