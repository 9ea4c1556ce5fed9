// Package engine is the transfer queue: a tree of endpoints, directories and
// file transfers, the group scheduler that runs them against connection
// limited sessions, the directory scanner and the failed-transfer registry.
//
// All queue state is owned by a Loop. Manager methods must be called on the
// loop goroutine, either from a posted function or from the goroutine that
// drives RunUntil.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/franksops/gofastq/config"
	"github.com/franksops/gofastq/logging"
	"github.com/franksops/gofastq/provider"
	"github.com/franksops/gofastq/session"
	"github.com/franksops/gofastq/store"
)

var (
	// ErrNotFound is returned for ids that name no queue or failed item.
	ErrNotFound = errors.New("no such queue item")
	// ErrLocalOnly rejects transfers without a remote side.
	ErrLocalOnly = errors.New("local to local transfers are not supported")
	// ErrNotMovable is returned by moves the scheduler does not allow.
	ErrNotMovable = errors.New("item cannot be moved")
	// ErrBusy is returned when an operation needs an idle item.
	ErrBusy = errors.New("item is busy")
	// ErrConnectionLost marks errors after which a connection is unusable.
	ErrConnectionLost = errors.New("connection lost")
)

// SessionProvider finds or spawns the session for a remote site.
type SessionProvider interface {
	FindOrSpawn(u *url.URL) (session.Session, error)
}

// Options configure a Manager.
type Options struct {
	Config   config.Config
	Sessions SessionProvider
	// Local serves file:// locations. Defaults to the local filesystem.
	Local provider.Provider
	// Store receives transfer checkpoints. Optional.
	Store      store.Store
	Checkpoint CheckpointConfig
	Observer   Observer
	Logger     *slog.Logger
}

// Manager is the entry point of the queue. It owns the tree, assigns ids,
// applies the retry policy and keeps the failed registry.
type Manager struct {
	ctx      context.Context
	loop     *Loop
	cfg      config.Config
	sessions SessionProvider
	local    provider.Provider
	observer Observer
	logger   *slog.Logger

	workers *WorkerPool
	copier  *copier
	scanner *Scanner

	root      *Root
	endpoints map[string]*Endpoint
	index     map[uint64]Item
	nextID    uint64
	failed    []*FailedTransfer
}

// NewManager creates a manager whose state lives on loop. Blocking work runs
// on a worker pool bound to ctx.
func NewManager(ctx context.Context, loop *Loop, opts Options) (*Manager, error) {
	if opts.Sessions == nil {
		return nil, errors.New("engine: no session provider")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chain, err := cfg.FilterChain()
	if err != nil {
		return nil, err
	}

	if opts.Local == nil {
		opts.Local = provider.NewLocalProvider("").WithPreserveMetadata(true)
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Checkpoint == (CheckpointConfig{}) {
		opts.Checkpoint = DefaultCheckpointConfig
	}

	workers := cfg.Queue.Workers
	if workers < 1 {
		workers = 1
	}
	pool := NewWorkerPool(ctx, make(TaskChannel, workers*4))
	pool.SetWorkerCount(workers)

	m := &Manager{
		ctx:      ctx,
		loop:     loop,
		cfg:      cfg,
		sessions: opts.Sessions,
		local:    opts.Local,
		observer: opts.Observer,
		logger:   opts.Logger,
		workers:  pool,
		copier: &copier{
			tracker: NewJobTracker(opts.Store, opts.Checkpoint),
			buffers: NewBufferPool(DefaultBufferSize),
			logger:  opts.Logger,
		},
		scanner:   NewScanner(chain, opts.Logger),
		endpoints: make(map[string]*Endpoint),
		index:     make(map[uint64]Item),
	}
	m.root = &Root{}
	m.root.init(m.root, KindRoot, m)
	return m, nil
}

// Close stops everything and waits for the workers to exit.
func (m *Manager) Close() {
	m.StopAll()
	m.workers.Stop()
}

// Workers is the number of I/O workers.
func (m *Manager) Workers() int { return m.workers.WorkerCount() }

// SetWorkers scales the I/O workers. Running copies finish on their worker.
func (m *Manager) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	m.workers.SetWorkerCount(n)
	m.logger.Info("workers changed", "workers", n)
}

// Root is the top of the queue tree.
func (m *Manager) Root() *Root { return m.root }

// Endpoints returns the endpoints in queue order.
func (m *Manager) Endpoints() []*Endpoint {
	out := make([]*Endpoint, 0, len(m.root.children))
	for _, c := range m.root.children {
		out = append(out, c.(*Endpoint))
	}
	return out
}

// Totals are the aggregated counters of the whole queue.
func (m *Manager) Totals() Stats { return m.root.stats }

// Lookup finds a queued item by id.
func (m *Manager) Lookup(id uint64) (Item, bool) {
	item, ok := m.index[id]
	return item, ok
}

// Idle reports whether nothing is scheduled or running.
func (m *Manager) Idle() bool {
	idle := true
	m.root.walk(func(item Item) {
		switch v := item.(type) {
		case *Endpoint:
			idle = idle && !v.Running()
		case runnable:
			idle = idle && !v.busy()
		}
	})
	return idle
}

func (m *Manager) locations(src, dst string) (*url.URL, *url.URL, Direction, error) {
	su, err := ParseLocation(src)
	if err != nil {
		return nil, nil, 0, err
	}
	du, err := ParseLocation(dst)
	if err != nil {
		return nil, nil, 0, err
	}
	dir, err := directionOf(su, du)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%s -> %s: %w", src, dst, err)
	}
	return su, du, dir, nil
}

func (m *Manager) newTransfer(src, dst *url.URL, dir Direction, size int64, opts TransferOptions) *Transfer {
	t := &Transfer{src: src, dst: dst, direction: dir, opts: opts}
	t.init(t, KindFile, m)
	if size > 0 {
		t.stats.Size = size
	}
	return t
}

func (m *Manager) newDirectory(src, dst *url.URL, dir Direction, opts TransferOptions) *Directory {
	d := &Directory{}
	d.src, d.dst, d.direction, d.opts = src, dst, dir, opts
	d.init(d, KindDirectory, m)
	d.group = newGroup(&d.Node, d.groupDone)
	return d
}

// endpointFor finds or creates the endpoint of t's remote side.
func (m *Manager) endpointFor(t *Transfer) *Endpoint {
	remote := t.src
	if t.direction == Upload {
		remote = t.dst
	}
	key := session.SiteKey(remote)
	if e, ok := m.endpoints[key]; ok {
		return e
	}

	e := &Endpoint{site: session.SiteURL(remote), key: key}
	e.init(e, KindEndpoint, m)
	e.group = newGroup(&e.Node, e.groupDone)
	m.endpoints[key] = e
	m.attach(&m.root.Node, e)
	m.logger.Info("endpoint created", "id", e.id, "site", e.site.Redacted())
	return e
}

// attach adds item under parent, giving it an id first if it has none, and
// announces it.
func (m *Manager) attach(parent *Node, item Item) {
	n := item.base()
	if n.id == 0 {
		m.nextID++
		n.id = m.nextID
	}
	parent.addChild(item)
	m.index[n.id] = item
	m.observer.NodeAdded(item)
}

// removeItem detaches item and its subtree, releasing every connection they
// hold.
func (m *Manager) removeItem(item Item) {
	n := item.base()
	parent := n.parent
	if parent == nil {
		return
	}

	m.observer.NodeRemoving(item)
	parent.removeChildAt(n.Index())
	n.walk(func(x Item) {
		if r, ok := x.(runnable); ok {
			r.transfer().stopRun()
			if d, ok := r.(*Directory); ok {
				d.halt()
			}
		}
		delete(m.index, x.ID())
	})
	m.observer.NodeRemoved()

	switch owner := parent.self.(type) {
	case *Endpoint:
		if len(owner.children) == 0 {
			m.removeEndpoint(owner)
			return
		}
		owner.group.pump()
	case *Directory:
		owner.group.pump()
	}
}

func (m *Manager) removeEndpoint(e *Endpoint) {
	e.group.stop()
	delete(m.endpoints, e.key)
	m.logger.Info("endpoint removed", "id", e.id, "site", e.site.Redacted())
	m.removeItem(e)
}

// QueueFile appends a file transfer to the endpoint of its remote side.
// size may be 0 when unknown.
func (m *Manager) QueueFile(src, dst string, size int64, opts TransferOptions) (*Transfer, error) {
	su, du, dir, err := m.locations(src, dst)
	if err != nil {
		return nil, err
	}
	t := m.newTransfer(su, du, dir, size, opts)
	m.attach(&m.endpointFor(t).Node, t)
	m.logger.Debug("file queued", "id", t.id, "source", DisplayLocation(su), "dest", DisplayLocation(du))
	return t, nil
}

// QueueDirectory appends a directory transfer. ModeScanOnly starts listing
// the source right away; the other modes wait for Start.
func (m *Manager) QueueDirectory(src, dst string, mode ExecMode, opts TransferOptions) (*Directory, error) {
	su, du, dir, err := m.locations(src, dst)
	if err != nil {
		return nil, err
	}
	d := m.newDirectory(su, du, dir, opts)
	if mode == ModeIgnore {
		d.mode = ModeIgnore
	}
	m.attach(&m.endpointFor(&d.Transfer).Node, d)
	m.logger.Debug("directory queued", "id", d.id, "source", DisplayLocation(su), "dest", DisplayLocation(du), "mode", mode)
	if mode == ModeScanOnly {
		d.scanOnly()
	}
	return d, nil
}

func (m *Manager) attached(item Item) bool {
	got, ok := m.index[item.ID()]
	return ok && got == item
}

// Start runs item: the whole queue for the root, the group of an endpoint, or
// a single transfer or directory outside its group.
func (m *Manager) Start(item Item) error {
	switch v := item.(type) {
	case *Root:
		m.StartAll()
		return nil
	case *Endpoint:
		if !m.attached(v) {
			return ErrNotFound
		}
		v.start()
	case runnable:
		if !m.attached(v) {
			return ErrNotFound
		}
		v.execute(nil, nil)
	}
	return nil
}

// StartAll starts every endpoint in queue order.
func (m *Manager) StartAll() {
	for _, e := range m.Endpoints() {
		e.start()
	}
}

// Stop aborts item and everything running below it.
func (m *Manager) Stop(item Item) error {
	switch v := item.(type) {
	case *Root:
		m.StopAll()
		return nil
	case *Endpoint:
		if !m.attached(v) {
			return ErrNotFound
		}
		v.stop()
	case runnable:
		if !m.attached(v) {
			return ErrNotFound
		}
		v.abort()
	}
	return nil
}

// StopAll stops every endpoint.
func (m *Manager) StopAll() {
	for _, e := range m.Endpoints() {
		e.stop()
	}
}

// Remove stops item if needed and dequeues it. An endpoint left without
// children is removed as well.
func (m *Manager) Remove(item Item) error {
	if !m.attached(item) {
		return ErrNotFound
	}
	switch v := item.(type) {
	case *Endpoint:
		v.stop()
		m.removeEndpoint(v)
		return nil
	case runnable:
		v.abort()
	}
	m.removeItem(item)
	return nil
}

// Lock pins an idle transfer or directory so no group starts it.
func (m *Manager) Lock(item Item) error {
	r, ok := item.(runnable)
	if !ok || !m.attached(item) {
		return ErrNotFound
	}
	if r.busy() {
		return ErrBusy
	}
	r.transfer().setStatus(StatusLocked)
	return nil
}

// Unlock releases a Lock.
func (m *Manager) Unlock(item Item) error {
	r, ok := item.(runnable)
	if !ok || !m.attached(item) {
		return ErrNotFound
	}
	if r.Status() == StatusLocked && !r.busy() {
		r.transfer().setStatus(StatusStopped)
	}
	return nil
}

func (m *Manager) move(item Item, can func(*Node) bool, to func(n *Node, i int) int) error {
	if !m.attached(item) {
		return ErrNotFound
	}
	n := item.base()
	if !can(n) {
		return ErrNotMovable
	}
	i := n.Index()
	n.parent.moveChild(i, to(n, i))
	m.observer.QueueUpdated()
	return nil
}

// MoveUp swaps item with the sibling above it.
func (m *Manager) MoveUp(item Item) error {
	return m.move(item, (*Node).CanMoveUp, func(_ *Node, i int) int { return i - 1 })
}

// MoveDown swaps item with the sibling below it.
func (m *Manager) MoveDown(item Item) error {
	return m.move(item, (*Node).CanMoveDown, func(_ *Node, i int) int { return i + 1 })
}

// MoveTop moves item in front of its siblings.
func (m *Manager) MoveTop(item Item) error {
	return m.move(item, (*Node).CanMoveTop, func(*Node, int) int { return 0 })
}

// MoveBottom moves item behind its siblings.
func (m *Manager) MoveBottom(item Item) error {
	return m.move(item, (*Node).CanMoveBottom, func(n *Node, _ int) int { return len(n.parent.children) - 1 })
}

// ClearFinished dequeues every finished transfer and directory.
func (m *Manager) ClearFinished() {
	var done []Item
	m.root.walk(func(item Item) {
		r, ok := item.(runnable)
		if !ok || !r.finished() {
			return
		}
		if p, ok := item.Parent().(runnable); ok && p.finished() {
			return
		}
		done = append(done, item)
	})
	for _, item := range done {
		if m.attached(item) {
			m.removeItem(item)
		}
	}
}

func (m *Manager) transferFinished(t *Transfer) {
	m.logger.Info("transfer finished",
		"id", t.id, "source", DisplayLocation(t.src), "dest", DisplayLocation(t.dst), "bytes", t.Completed())
	m.observer.TransferFinished(t)
	t.sig.finished.Emit(t)
	if m.cfg.Queue.RemoveFinished && m.attached(t) {
		m.removeItem(t)
	}
}

func (m *Manager) directoryFinished(d *Directory) {
	m.logger.Info("directory finished", "id", d.id, "source", DisplayLocation(d.src), "dest", DisplayLocation(d.dst))
	d.sig.finished.Emit(d)
	if m.cfg.Queue.RemoveFinished && m.attached(d) {
		m.removeItem(d)
	}
}

func (m *Manager) endpointDone(e *Endpoint) {
	m.logger.Info("endpoint finished", "id", e.id, "site", e.site.Redacted())
	m.observer.QueueUpdated()
}
