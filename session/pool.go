package session

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/franksops/gofastq/notify"
	"github.com/franksops/gofastq/provider"
)

// DialFunc opens one channel to the site addressed by u.
type DialFunc func(ctx context.Context, u *url.URL) (provider.Provider, error)

type connState int

const (
	stateIdle connState = iota
	stateDialing
	stateConnected
	stateFailed
)

// Pool is the Session implementation: a capped set of connections to one
// site. Released connections stay dialed for the next requester.
type Pool struct {
	ctx    context.Context
	key    string
	url    *url.URL
	max    int
	dial   DialFunc
	post   Poster
	logger *slog.Logger

	conns []*conn
	freed notify.Signal[struct{}]
}

var _ Session = (*Pool)(nil)

// NewPool creates a pool of at most max connections to the site of u.
func NewPool(ctx context.Context, u *url.URL, max int, dial DialFunc, post Poster, logger *slog.Logger) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		ctx:    ctx,
		key:    SiteKey(u),
		url:    SiteURL(u),
		max:    max,
		dial:   dial,
		post:   post,
		logger: logger,
	}
}

func (p *Pool) Key() string   { return p.key }
func (p *Pool) URL() *url.URL { return p.url }

// Max returns the connection cap.
func (p *Pool) Max() int { return p.max }

// InUse returns the number of connections held by requesters.
func (p *Pool) InUse() int {
	n := 0
	for _, c := range p.conns {
		if c.inUse {
			n++
		}
	}
	return n
}

func (p *Pool) HasFreeConnection() bool {
	if len(p.conns) < p.max {
		return true
	}
	for _, c := range p.conns {
		if !c.inUse {
			return true
		}
	}
	return false
}

func (p *Pool) AcquireConnection(requester any) Connection {
	var picked *conn
	for _, c := range p.conns {
		if c.inUse {
			continue
		}
		if picked == nil || (c.state == stateConnected && picked.state != stateConnected) {
			picked = c
		}
	}
	if picked == nil {
		if len(p.conns) >= p.max {
			return nil
		}
		picked = &conn{pool: p}
		p.conns = append(p.conns, picked)
	}

	picked.inUse = true
	picked.owner = requester
	if picked.state == stateIdle {
		p.startDial(picked)
	}
	return picked
}

func (p *Pool) OnConnectionFreed(key any, fn func()) {
	p.freed.Subscribe(key, func(struct{}) { fn() })
}

func (p *Pool) OffConnectionFreed(key any) {
	p.freed.Unsubscribe(key)
}

// Close shuts every idle connection down. Connections still held are closed
// when released.
func (p *Pool) Close() {
	kept := p.conns[:0]
	for _, c := range p.conns {
		if c.inUse {
			c.broken = true
			kept = append(kept, c)
			continue
		}
		c.broken = true
		c.shutdown()
	}
	p.conns = kept
}

func (p *Pool) startDial(c *conn) {
	c.state = stateDialing
	p.logger.Debug("dialing", "site", p.url.Redacted())

	ctx, u, dial := p.ctx, p.url, p.dial
	go func() {
		prov, err := dial(ctx, u)
		p.post(func() { c.dialed(prov, err) })
	}()
}

func (p *Pool) remove(c *conn) {
	for i, other := range p.conns {
		if other == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

func (p *Pool) release(c *conn) {
	c.inUse = false
	c.owner = nil
	c.connected.Reset()
	if c.broken || c.state == stateFailed {
		p.remove(c)
		c.shutdown()
	}
	// Waiters run after the releasing transfer has finished its bookkeeping.
	p.post(func() { p.freed.Emit(struct{}{}) })
}

type conn struct {
	pool   *Pool
	state  connState
	prov   provider.Provider
	err    error
	inUse  bool
	broken bool
	owner  any

	connected notify.Signal[error]
}

func (c *conn) Session() Session { return c.pool }

func (c *conn) IsConnected() bool { return c.state == stateConnected }

func (c *conn) OnConnected(key any, fn func(error)) {
	c.connected.Subscribe(key, fn)
}

func (c *conn) OffConnected(key any) {
	c.connected.Unsubscribe(key)
}

func (c *conn) Provider() provider.Provider { return c.prov }

func (c *conn) MarkBroken() { c.broken = true }

func (c *conn) Release() {
	if !c.inUse {
		return
	}
	c.pool.release(c)
}

func (c *conn) dialed(prov provider.Provider, err error) {
	if err != nil {
		c.state = stateFailed
		c.err = err
		c.pool.logger.Warn("connect failed", "site", c.pool.url.Redacted(), "error", err)
		if !c.inUse {
			c.pool.remove(c)
		}
		c.connected.Emit(err)
		return
	}

	c.prov = prov
	c.state = stateConnected
	if c.broken && !c.inUse {
		c.pool.remove(c)
		c.shutdown()
		return
	}
	c.connected.Emit(nil)
}

func (c *conn) shutdown() {
	prov := c.prov
	c.prov = nil
	c.state = stateIdle
	if prov == nil {
		return
	}
	logger := c.pool.logger
	go func() {
		if err := prov.Close(); err != nil {
			logger.Debug("close connection", "error", err)
		}
	}()
}
