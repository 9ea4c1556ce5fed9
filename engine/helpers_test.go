package engine_test

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/franksops/gofastq/config"
	"github.com/franksops/gofastq/engine"
	"github.com/franksops/gofastq/logging"
	"github.com/franksops/gofastq/provider"
	"github.com/franksops/gofastq/session"
)

const waitFor = 5 * time.Second

// recorder collects observer events. It runs on the loop like the manager.
type recorder struct {
	engine.NopObserver
	added    []uint64
	removing []uint64
	removed  int
	failed   []uint64
	finished []uint64
	updates  int
	locked   map[uint64]bool
}

func (r *recorder) NodeAdded(item engine.Item)            { r.added = append(r.added, item.ID()) }
func (r *recorder) NodeRemoving(item engine.Item)         { r.removing = append(r.removing, item.ID()) }
func (r *recorder) NodeRemoved()                          { r.removed++ }
func (r *recorder) QueueUpdated()                         { r.updates++ }
func (r *recorder) FailedAdded(ft *engine.FailedTransfer) { r.failed = append(r.failed, ft.ID()) }
func (r *recorder) TransferFinished(t *engine.Transfer)   { r.finished = append(r.finished, t.ID()) }

func (r *recorder) NodeChanged(item engine.Item) {
	if item.Status() == engine.StatusLocked {
		r.locked[item.ID()] = true
	}
}

// harness wires a manager to an in-memory "mem://" site and an in-memory
// local filesystem. The test goroutine is the loop goroutine.
type harness struct {
	t        *testing.T
	ctx      context.Context
	loop     *engine.Loop
	cfg      config.Config
	remote   *provider.MemProvider
	local    *provider.MemProvider
	registry *session.Registry
	m        *engine.Manager
	rec      *recorder
	dials    atomic.Int32
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Retry.Delay = 5 * time.Millisecond
	cfg.Queue.Workers = 4
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		t:      t,
		ctx:    ctx,
		loop:   engine.NewLoop(),
		cfg:    cfg,
		remote: provider.NewMemProvider(),
		local:  provider.NewMemProvider(),
		rec:    &recorder{locked: make(map[uint64]bool)},
	}
	h.registry = session.NewRegistry(ctx, h.loop.Post, cfg.Queue.ConnectionsPerSite, logging.Discard())
	h.registry.RegisterDialer("mem", func(ctx context.Context, u *url.URL) (provider.Provider, error) {
		h.dials.Add(1)
		return h.remote, nil
	})

	m, err := engine.NewManager(ctx, h.loop, engine.Options{
		Config:   cfg,
		Sessions: h.registry,
		Local:    h.local,
		Observer: h.rec,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	h.m = m
	t.Cleanup(m.Close)
	return h
}

// run drives the loop until cond holds.
func (h *harness) run(cond func() bool) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, waitFor)
	defer cancel()
	require.NoError(h.t, h.loop.RunUntil(ctx, cond), "condition not reached")
}

func (h *harness) queueFile(src, dst string, size int64) *engine.Transfer {
	h.t.Helper()
	tr, err := h.m.QueueFile(src, dst, size, engine.TransferOptions{})
	require.NoError(h.t, err)
	return tr
}

func (h *harness) endpoint() *engine.Endpoint {
	h.t.Helper()
	eps := h.m.Endpoints()
	require.Len(h.t, eps, 1)
	return eps[0]
}

func (h *harness) pool() *session.Pool {
	h.t.Helper()
	pools := h.registry.Sessions()
	require.Len(h.t, pools, 1)
	return pools[0]
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}
