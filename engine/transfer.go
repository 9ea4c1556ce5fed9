package engine

import (
	"context"
	"net/url"
	"time"

	"github.com/franksops/gofastq/notify"
	"github.com/franksops/gofastq/provider"
	"github.com/franksops/gofastq/session"
)

// Direction says which sides of a transfer are remote.
type Direction int

const (
	Download Direction = iota
	Upload
	ServerToServer
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	}
	return "server-to-server"
}

func directionOf(src, dst *url.URL) (Direction, error) {
	switch {
	case isLocal(src) && isLocal(dst):
		return 0, ErrLocalOnly
	case isLocal(src):
		return Upload, nil
	case isLocal(dst):
		return Download, nil
	}
	return ServerToServer, nil
}

// TransferOptions are per-item flags set at queue time.
type TransferOptions struct {
	// DeleteAfter removes the source once the copy succeeded.
	DeleteAfter bool
	// OpenAfter asks the front end to open the result when done.
	OpenAfter bool
}

// runnable is what a Group schedules: a file Transfer or a Directory.
type runnable interface {
	Item
	execute(srcHint, dstHint session.Session)
	abort()
	busy() bool
	finished() bool
	sessions() (src, dst session.Session)
	signals() *transferSignals
	transfer() *Transfer
}

type transferSignals struct {
	// finished fires after a successful run.
	finished notify.Signal[runnable]
	// interrupted fires after an abort or a final failure.
	interrupted notify.Signal[runnable]
	// ready fires when a transfer leaves a parked state (Waiting, Connecting,
	// Locked) so a blocked group can continue.
	ready notify.Signal[runnable]
}

// Transfer is a single-file copy and the base of Directory.
type Transfer struct {
	Node

	src, dst  *url.URL
	direction Direction
	opts      TransferOptions

	srcSession, dstSession session.Session
	srcConn, dstConn       session.Connection

	retries      int
	done         bool
	gen          uint64
	cancel       context.CancelFunc
	retryTimer   *time.Timer
	retryPending bool
	lastErr      error

	sig transferSignals
}

func (t *Transfer) Source() *url.URL         { return t.src }
func (t *Transfer) Dest() *url.URL           { return t.dst }
func (t *Transfer) Direction() Direction     { return t.direction }
func (t *Transfer) Retries() int             { return t.retries }
func (t *Transfer) Options() TransferOptions { return t.opts }

// OpenAfter reports whether the result should be opened once finished.
func (t *Transfer) OpenAfter() bool { return t.opts.OpenAfter }

// Finished reports whether the last run completed successfully.
func (t *Transfer) Finished() bool { return t.done }

// Err is the error of the last failed attempt.
func (t *Transfer) Err() error { return t.lastErr }

// Connections returns the connections currently held.
func (t *Transfer) Connections() (src, dst session.Connection) {
	return t.srcConn, t.dstConn
}

func (t *Transfer) transfer() *Transfer       { return t }
func (t *Transfer) signals() *transferSignals { return &t.sig }
func (t *Transfer) finished() bool            { return t.done }
func (t *Transfer) runner() runnable          { return t.self.(runnable) }

func (t *Transfer) sessions() (src, dst session.Session) {
	return t.srcSession, t.dstSession
}

func (t *Transfer) busy() bool {
	switch t.status {
	case StatusRunning, StatusConnecting, StatusWaiting:
		return true
	}
	return false
}

// setStatus also tells a waiting group when the transfer leaves a parked
// state.
func (t *Transfer) setStatus(s Status) {
	prev := t.status
	t.Node.setStatus(s)
	if prev != s && isParked(prev) {
		t.sig.ready.Emit(t.runner())
	}
}

func isParked(s Status) bool {
	return s == StatusWaiting || s == StatusConnecting || s == StatusLocked
}

func (t *Transfer) needs() (src, dst bool) {
	return !isLocal(t.src), !isLocal(t.dst)
}

func (t *Transfer) execute(srcHint, dstHint session.Session) {
	if t.done || t.retryPending {
		return
	}
	switch t.status {
	case StatusRunning, StatusLocked, StatusFailed:
		return
	}

	needSrc, needDst := t.needs()
	if !t.prepare(needSrc, needDst, srcHint, dstHint) {
		return
	}
	t.start()
}

// prepare acquires the connections a run needs and parks the transfer in
// Waiting or Connecting when they are not usable yet. It reports whether the
// run can start now.
func (t *Transfer) prepare(needSrc, needDst bool, srcHint, dstHint session.Session) bool {
	ok, err := t.assignSessions(needSrc, needDst, srcHint, dstHint)
	if err != nil {
		t.m.handleError(t.runner(), err, true)
		return false
	}
	if !ok {
		t.setStatus(StatusWaiting)
		return false
	}
	if !t.connectionsReady(needSrc, needDst) {
		t.setStatus(StatusConnecting)
		return false
	}
	return true
}

// assignSessions finds a session per remote side, preferring the hints, and
// tries to take a connection from each. It reports whether every needed side
// now holds a connection.
func (t *Transfer) assignSessions(needSrc, needDst bool, srcHint, dstHint session.Session) (bool, error) {
	ok := true
	if needSrc && t.srcConn == nil {
		s, err := t.pickSession(t.src, srcHint, t.srcSession)
		if err != nil {
			return false, err
		}
		t.srcSession = s
		t.srcConn = t.initializeSession(s)
		ok = ok && t.srcConn != nil
	}
	if needDst && t.dstConn == nil {
		s, err := t.pickSession(t.dst, dstHint, t.dstSession)
		if err != nil {
			return false, err
		}
		t.dstSession = s
		t.dstConn = t.initializeSession(s)
		ok = ok && t.dstConn != nil
	}
	if ok {
		t.unsubscribeFreed()
	}
	return ok, nil
}

func (t *Transfer) pickSession(u *url.URL, hint, current session.Session) (session.Session, error) {
	if current != nil {
		return current, nil
	}
	if hint != nil && hint.Key() == session.SiteKey(u) {
		return hint, nil
	}
	return t.m.sessions.FindOrSpawn(u)
}

// initializeSession takes a connection from s, or subscribes to s's freed
// notification and returns nil.
func (t *Transfer) initializeSession(s session.Session) session.Connection {
	if s.HasFreeConnection() {
		if c := s.AcquireConnection(t); c != nil {
			c.OnConnected(t, t.connected)
			return c
		}
	}
	s.OnConnectionFreed(t, t.connectionFreed)
	return nil
}

func (t *Transfer) connectionsReady(needSrc, needDst bool) bool {
	if needSrc && (t.srcConn == nil || !t.srcConn.IsConnected()) {
		return false
	}
	if needDst && (t.dstConn == nil || !t.dstConn.IsConnected()) {
		return false
	}
	return true
}

func (t *Transfer) connectionFreed() {
	if t.status != StatusWaiting || t.retryPending {
		return
	}
	if t.srcConn == nil && t.srcSession != nil && !t.srcSession.HasFreeConnection() {
		return
	}
	if t.dstConn == nil && t.dstSession != nil && !t.dstSession.HasFreeConnection() {
		return
	}
	t.runner().execute(nil, nil)
}

func (t *Transfer) connected(err error) {
	if err != nil {
		if t.busy() {
			t.m.handleError(t.runner(), err, false)
		}
		return
	}
	if t.status == StatusConnecting {
		t.runner().execute(nil, nil)
	}
}

func (t *Transfer) unsubscribeFreed() {
	if t.srcSession != nil {
		t.srcSession.OffConnectionFreed(t)
	}
	if t.dstSession != nil {
		t.dstSession.OffConnectionFreed(t)
	}
}

// deinitializeConnections releases held connections and drops every session
// subscription. The sessions stay assigned as hints for the next run.
func (t *Transfer) deinitializeConnections() {
	for _, c := range []*session.Connection{&t.srcConn, &t.dstConn} {
		if *c == nil {
			continue
		}
		(*c).OffConnected(t)
		(*c).Release()
		*c = nil
	}
	t.unsubscribeFreed()
}

func (t *Transfer) markConnectionsBroken() {
	if t.srcConn != nil {
		t.srcConn.MarkBroken()
	}
	if t.dstConn != nil {
		t.dstConn.MarkBroken()
	}
}

func (t *Transfer) providerFor(u *url.URL, c session.Connection) provider.Provider {
	if isLocal(u) {
		return t.m.local
	}
	return c.Provider()
}

func (t *Transfer) start() {
	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(t.m.ctx)
	t.cancel = cancel
	t.setStatus(StatusRunning)

	job := copyJob{
		key:          JobKey(t.src.String(), t.dst.String()),
		src:          t.providerFor(t.src, t.srcConn),
		dst:          t.providerFor(t.dst, t.dstConn),
		srcPath:      t.src.Path,
		dstPath:      t.dst.Path,
		srcName:      documentLocation(t.src),
		dstName:      documentLocation(t.dst),
		size:         t.Size(),
		deleteSource: t.opts.DeleteAfter,
		attempt:      t.retries,
	}

	m := t.m
	report := func(delta, speed int64) {
		if t.gen == gen && t.status == StatusRunning {
			t.AddCompleted(delta)
			t.SetSpeed(speed)
		}
	}
	m.workers.Submit(func(wctx context.Context) {
		stop := context.AfterFunc(wctx, cancel)
		defer stop()

		meter := newProgressMeter(m.loop, report)
		err := m.copier.run(ctx, job, meter.add)
		meter.flush()
		m.loop.Post(func() { t.copyDone(gen, err) })
	})
}

func (t *Transfer) copyDone(gen uint64, err error) {
	if gen != t.gen || t.status != StatusRunning {
		return
	}
	t.cancel()
	t.cancel = nil
	if err != nil {
		t.m.handleError(t, err, false)
		return
	}

	t.deinitializeConnections()
	t.SetSpeed(0)
	if t.Size() <= 0 && t.Completed() > 0 {
		t.AddSize(t.Completed())
	}
	t.AddActualSize(t.Completed() - t.stats.ActualSize)
	t.lastErr = nil
	t.done = true
	t.setStatus(StatusStopped)
	t.m.transferFinished(t)
}

// stopRun cancels whatever the transfer is doing and releases its
// connections without emitting anything.
func (t *Transfer) stopRun() {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	t.retryPending = false
	t.deinitializeConnections()
}

func (t *Transfer) abort() {
	if !t.busy() {
		return
	}
	t.stopRun()
	t.resetProgress()
	t.setStatus(StatusStopped)
	t.sig.interrupted.Emit(t.runner())
}

// scheduleRetry parks the transfer in Waiting and re-executes it after delay.
func (t *Transfer) scheduleRetry(delay time.Duration) {
	t.retries++
	t.resetProgress()
	t.retryPending = true
	t.setStatus(StatusWaiting)

	gen := t.gen
	loop := t.m.loop
	t.retryTimer = time.AfterFunc(delay, func() {
		loop.Post(func() { t.retryFire(gen) })
	})
}

func (t *Transfer) retryFire(gen uint64) {
	if !t.retryPending || gen != t.gen {
		return
	}
	t.retryPending = false
	t.retryTimer = nil
	t.setStatus(StatusStopped)
	t.runner().execute(nil, nil)
}
