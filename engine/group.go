package engine

import (
	"github.com/franksops/gofastq/session"
)

// Group schedules the children of an Endpoint or a Directory in list order.
//
// A child only starts when its sessions can hand out a connection; the
// sessions of the previously started child are passed along as hints so
// consecutive children share them. At most one started child is parked in
// Waiting at a time, and the group continues when it leaves that state.
type Group struct {
	owner *Node
	done  func()

	cursor          int
	last            runnable
	parallelWithDir bool
	running         bool

	pumping bool
	again   bool
	watched map[runnable]struct{}
}

func newGroup(owner *Node, done func()) *Group {
	return &Group{
		owner:   owner,
		done:    done,
		watched: make(map[runnable]struct{}),
	}
}

// Running reports whether the group is scheduling.
func (g *Group) Running() bool { return g.running }

// Cursor is the index of the next child to consider.
func (g *Group) Cursor() int { return g.cursor }

func (g *Group) start() {
	if g.running {
		return
	}
	g.cursor = 0
	g.last = nil
	g.parallelWithDir = true
	g.again = false
	g.running = true
	g.pump()
}

func (g *Group) stop() {
	g.running = false
	for r := range g.watched {
		g.unwatch(r)
	}
}

// pump starts children until one step reports blocked or finished. A pump
// requested while pumping restarts the loop instead of nesting.
func (g *Group) pump() {
	if g.pumping {
		g.again = true
		return
	}
	g.pumping = true
	defer func() { g.pumping = false }()

	for g.running {
		if g.executeNext() == 1 {
			continue
		}
		if g.again {
			g.again = false
			continue
		}
		break
	}
}

// executeNext returns 1 when a child was started, 0 when the group has to
// wait for an event and -1 when nothing is left to start.
func (g *Group) executeNext() int {
	if !g.running {
		return -1
	}

	children := g.owner.children
	for g.cursor < len(children) {
		r := children[g.cursor].(runnable)
		if r.finished() {
			g.cursor++
			continue
		}
		if d, ok := r.(*Directory); (ok && d.scanning) || r.Status() == StatusLocked {
			g.watch(r)
			return 0
		}
		if r.busy() {
			// started from outside the group
			g.watch(r)
			g.cursor++
			continue
		}
		break
	}

	if g.cursor >= len(children) {
		if !g.anyBusy() {
			g.finish()
		}
		return -1
	}
	if g.hasWaiter() {
		return 0
	}

	next := children[g.cursor].(runnable)
	if next.Kind() == KindFile && !g.parallelWithDir && g.dirPending() {
		return 0
	}

	var srcHint, dstHint session.Session
	if g.last != nil {
		srcHint, dstHint = g.last.sessions()
	}
	g.cursor++
	g.last = next
	g.watch(next)
	next.execute(srcHint, dstHint)

	if next.Status() == StatusWaiting && !next.transfer().retryPending {
		return 0
	}
	return 1
}

func (g *Group) finish() {
	g.stop()
	g.done()
}

func (g *Group) anyBusy() bool {
	for _, c := range g.owner.children {
		if c.(runnable).busy() {
			return true
		}
	}
	return false
}

// hasWaiter reports whether a started child is still waiting for a
// connection.
func (g *Group) hasWaiter() bool {
	for i := 0; i < g.cursor && i < len(g.owner.children); i++ {
		r := g.owner.children[i].(runnable)
		if r.Status() == StatusWaiting && !r.transfer().retryPending {
			return true
		}
	}
	return false
}

// dirPending reports whether a started child directory is still listing.
func (g *Group) dirPending() bool {
	for i := 0; i < g.cursor && i < len(g.owner.children); i++ {
		if d, ok := g.owner.children[i].(*Directory); ok && d.scanning {
			return true
		}
	}
	return false
}

func (g *Group) watch(r runnable) {
	if _, ok := g.watched[r]; ok {
		return
	}
	g.watched[r] = struct{}{}
	sig := r.signals()
	sig.finished.Subscribe(g, g.childFinished)
	sig.interrupted.Subscribe(g, g.childInterrupted)
	sig.ready.Subscribe(g, g.childReady)
}

func (g *Group) unwatch(r runnable) {
	delete(g.watched, r)
	sig := r.signals()
	sig.finished.Unsubscribe(g)
	sig.interrupted.Unsubscribe(g)
	sig.ready.Unsubscribe(g)
}

// childFinished is the increment-and-execute step after a successful child.
func (g *Group) childFinished(r runnable) {
	g.unwatch(r)
	if r.Kind() == KindFile {
		g.parallelWithDir = false
	}
	g.pump()
}

func (g *Group) childInterrupted(r runnable) {
	g.unwatch(r)
	g.pump()
}

func (g *Group) childReady(runnable) {
	g.pump()
}

func (g *Group) childMovable(i int) bool {
	return !g.running || i >= g.cursor
}

func (g *Group) childRemoved(i int, item Item) {
	if i < g.cursor {
		g.cursor--
	}
	if r, ok := item.(runnable); ok {
		g.unwatch(r)
		if g.last == r {
			g.last = nil
		}
	}
}
