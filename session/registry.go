package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/franksops/gofastq/provider"
)

// Registry finds or spawns one Pool per site. It is the session layer the
// queue manager talks to.
type Registry struct {
	ctx     context.Context
	post    Poster
	max     int
	logger  *slog.Logger
	dialers map[string]DialFunc
	pools   map[string]*Pool
}

// NewRegistry creates a registry with FTP, FTPS and S3 dialers installed.
// maxPerSite caps the connections of every session.
func NewRegistry(ctx context.Context, post Poster, maxPerSite int, logger *slog.Logger) *Registry {
	r := &Registry{
		ctx:     ctx,
		post:    post,
		max:     maxPerSite,
		logger:  logger,
		dialers: make(map[string]DialFunc),
		pools:   make(map[string]*Pool),
	}
	r.RegisterDialer("ftp", dialFTP)
	r.RegisterDialer("ftps", dialFTP)
	r.RegisterDialer("s3", dialS3)
	return r
}

// RegisterDialer installs or replaces the dialer for scheme.
func (r *Registry) RegisterDialer(scheme string, dial DialFunc) {
	r.dialers[scheme] = dial
}

// FindOrSpawn returns the session for the site of u, creating it on first use.
func (r *Registry) FindOrSpawn(u *url.URL) (Session, error) {
	key := SiteKey(u)
	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	dial, ok := r.dialers[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	pool := NewPool(r.ctx, u, r.max, dial, r.post, r.logger)
	r.pools[key] = pool
	r.logger.Info("session created", "site", pool.URL().Redacted(), "max_connections", pool.Max())
	return pool, nil
}

// Sessions returns the live pools.
func (r *Registry) Sessions() []*Pool {
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	return pools
}

// Close shuts down every idle connection of every session.
func (r *Registry) Close() {
	for _, p := range r.pools {
		p.Close()
	}
}

func dialFTP(ctx context.Context, u *url.URL) (provider.Provider, error) {
	return provider.DialFTP(ctx, u, provider.DefaultFTPTimeout)
}

func dialS3(ctx context.Context, u *url.URL) (provider.Provider, error) {
	return provider.NewS3Provider(ctx, u.Host, "")
}
