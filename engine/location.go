package engine

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ParseLocation turns a queue argument into a URL. Anything without a
// scheme is a local path and becomes an absolute file:// URL.
func ParseLocation(s string) (*url.URL, error) {
	if s == "" {
		return nil, fmt.Errorf("empty location")
	}
	if !strings.Contains(s, "://") {
		abs, err := filepath.Abs(s)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", s, err)
		}
		return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", s, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func isLocal(u *url.URL) bool {
	return u.Scheme == "" || u.Scheme == "file"
}

func childURL(base *url.URL, name string) *url.URL {
	u := *base
	u.Path = path.Join(base.Path, name)
	u.RawPath = ""
	return &u
}

// DisplayLocation is the form used in logs and views: plain paths for
// local files, redacted URLs for remote ones.
func DisplayLocation(u *url.URL) string {
	if isLocal(u) {
		return filepath.FromSlash(u.Path)
	}
	return u.Redacted()
}

func documentLocation(u *url.URL) string {
	if isLocal(u) {
		return filepath.FromSlash(u.Path)
	}
	return u.String()
}
