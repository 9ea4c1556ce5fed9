package engine

import (
	"net/url"
)

// Root is the invisible top of the queue. Its children are the endpoints.
type Root struct {
	Node
}

// Endpoint groups the top-level transfers that talk to one remote site.
type Endpoint struct {
	Node

	site  *url.URL
	key   string
	group *Group
}

// Site is the remote site URL without a path.
func (e *Endpoint) Site() *url.URL { return e.site }

// Key is the session key the endpoint was deduplicated by.
func (e *Endpoint) Key() string { return e.key }

func (e *Endpoint) Group() *Group { return e.group }

// Running reports whether the endpoint's group is scheduling children.
func (e *Endpoint) Running() bool { return e.group.running }

func (e *Endpoint) childMovable(i int) bool       { return e.group.childMovable(i) }
func (e *Endpoint) childRemoved(i int, item Item) { e.group.childRemoved(i, item) }

func (e *Endpoint) start() {
	if e.group.running {
		return
	}
	e.setStatus(StatusRunning)
	e.group.start()
}

func (e *Endpoint) stop() {
	e.group.stop()
	for _, c := range e.Children() {
		if r := c.(runnable); r.busy() {
			r.abort()
		}
	}
	e.setStatus(StatusStopped)
}

func (e *Endpoint) groupDone() {
	e.setStatus(StatusStopped)
	e.m.endpointDone(e)
}
