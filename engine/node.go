package engine

// Kind tells the node variants apart.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindEndpoint
	KindRoot
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindEndpoint:
		return "endpoint"
	case KindRoot:
		return "root"
	}
	return "unknown"
}

// Status is the lifecycle state shown for a node.
type Status int

const (
	StatusUnknown Status = iota
	StatusStopped
	StatusConnecting
	StatusWaiting
	StatusRunning
	StatusLocked
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusConnecting:
		return "connecting"
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusLocked:
		return "locked"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Stats are the aggregated counters of a node. For every container they
// equal the sum over its children; Speed additionally includes the node's
// own rate.
type Stats struct {
	Size       int64
	ActualSize int64
	Completed  int64
	Resumed    int64
	Speed      int64
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Size:       s.Size + o.Size,
		ActualSize: s.ActualSize + o.ActualSize,
		Completed:  s.Completed + o.Completed,
		Resumed:    s.Resumed + o.Resumed,
		Speed:      s.Speed + o.Speed,
	}
}

func (s Stats) neg() Stats {
	return Stats{-s.Size, -s.ActualSize, -s.Completed, -s.Resumed, -s.Speed}
}

// Item is anything that lives in the queue tree: *Root, *Endpoint,
// *Directory or *Transfer.
type Item interface {
	ID() uint64
	Kind() Kind
	Status() Status
	Stats() Stats
	Parent() Item
	Children() []Item

	base() *Node
}

// childGuard is implemented by containers whose scheduler pins children.
type childGuard interface {
	childMovable(i int) bool
	childRemoved(i int, item Item)
}

// Node is the part shared by every tree element: identity, status, counters
// and the ordered child list. A node owns its children; the parent link is a
// plain back reference. Nodes are confined to the orchestration loop.
type Node struct {
	id       uint64
	kind     Kind
	status   Status
	stats    Stats
	ownSpeed int64

	children []Item
	parent   *Node
	self     Item
	m        *Manager
}

func (n *Node) init(self Item, kind Kind, m *Manager) {
	n.self = self
	n.kind = kind
	n.status = StatusStopped
	n.m = m
}

func (n *Node) base() *Node { return n }

func (n *Node) ID() uint64       { return n.id }
func (n *Node) Kind() Kind       { return n.kind }
func (n *Node) Status() Status   { return n.status }
func (n *Node) Stats() Stats     { return n.stats }
func (n *Node) Size() int64      { return n.stats.Size }
func (n *Node) Completed() int64 { return n.stats.Completed }
func (n *Node) Speed() int64     { return n.stats.Speed }

// Item returns the concrete element this node belongs to.
func (n *Node) Item() Item { return n.self }

// Progress is Completed/Size in percent. Nodes of unknown size report 0.
func (n *Node) Progress() float64 {
	if n.stats.Size <= 0 {
		return 0
	}
	return float64(n.stats.Completed) * 100 / float64(n.stats.Size)
}

// Parent returns the containing item, or nil for the root and for detached
// nodes.
func (n *Node) Parent() Item {
	if n.parent == nil {
		return nil
	}
	return n.parent.self
}

// Children returns a copy of the ordered child list.
func (n *Node) Children() []Item {
	return append([]Item(nil), n.children...)
}

func (n *Node) ChildCount() int { return len(n.children) }

func (n *Node) Child(i int) Item { return n.children[i] }

// Index is the position of n in its parent, or -1 when detached.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c.base() == n {
			return i
		}
	}
	return -1
}

// AddSize changes the size of n and of every ancestor by delta.
func (n *Node) AddSize(delta int64) { n.apply(Stats{Size: delta}) }

// AddActualSize changes the on-disk size of n and its ancestors by delta.
func (n *Node) AddActualSize(delta int64) { n.apply(Stats{ActualSize: delta}) }

// AddCompleted changes the transferred byte count of n and its ancestors.
func (n *Node) AddCompleted(delta int64) { n.apply(Stats{Completed: delta}) }

// AddResumed changes the resumed byte count of n and its ancestors.
func (n *Node) AddResumed(delta int64) { n.apply(Stats{Resumed: delta}) }

// SetSpeed sets the node's own rate. The reported speed stays the sum of the
// children's speeds plus the own rate, for n and every ancestor.
func (n *Node) SetSpeed(speed int64) {
	delta := speed - n.ownSpeed
	if delta == 0 {
		return
	}
	n.ownSpeed = speed
	n.apply(Stats{Speed: delta})
}

func (n *Node) apply(d Stats) {
	if d == (Stats{}) {
		return
	}
	for p := n; p != nil; p = p.parent {
		p.stats = p.stats.add(d)
		p.changed()
	}
}

func (n *Node) resetProgress() {
	n.SetSpeed(0)
	n.apply(Stats{Completed: -n.stats.Completed, Resumed: -n.stats.Resumed})
}

func (n *Node) setStatus(s Status) {
	if n.status == s {
		return
	}
	n.status = s
	n.changed()
}

func (n *Node) changed() {
	if n.m != nil && n.id != 0 {
		n.m.observer.NodeChanged(n.self)
	}
}

func (n *Node) addChild(item Item) {
	c := item.base()
	c.parent = n
	n.children = append(n.children, item)
	n.apply(c.stats)
}

func (n *Node) removeChildAt(i int) Item {
	item := n.children[i]
	n.children = append(n.children[:i], n.children[i+1:]...)
	c := item.base()
	n.apply(c.stats.neg())
	c.parent = nil
	if g, ok := n.self.(childGuard); ok {
		g.childRemoved(i, item)
	}
	return item
}

func (n *Node) childMovable(i int) bool {
	if r, ok := n.children[i].(runnable); ok && r.busy() {
		return false
	}
	if g, ok := n.self.(childGuard); ok {
		return g.childMovable(i)
	}
	return true
}

func (n *Node) rangeMovable(from, to int) bool {
	if from > to {
		from, to = to, from
	}
	for i := from; i <= to; i++ {
		if !n.childMovable(i) {
			return false
		}
	}
	return true
}

// CanMoveUp reports whether n may swap with the sibling above it.
func (n *Node) CanMoveUp() bool {
	i := n.Index()
	return i > 0 && n.parent.rangeMovable(i-1, i)
}

// CanMoveDown reports whether n may swap with the sibling below it.
func (n *Node) CanMoveDown() bool {
	i := n.Index()
	return i >= 0 && i < len(n.parent.children)-1 && n.parent.rangeMovable(i, i+1)
}

// CanMoveTop reports whether n may be moved in front of all its siblings.
func (n *Node) CanMoveTop() bool {
	i := n.Index()
	return i > 0 && n.parent.rangeMovable(0, i)
}

// CanMoveBottom reports whether n may be moved behind all its siblings.
func (n *Node) CanMoveBottom() bool {
	i := n.Index()
	return i >= 0 && i < len(n.parent.children)-1 && n.parent.rangeMovable(i, len(n.parent.children)-1)
}

func (n *Node) moveChild(from, to int) {
	item := n.children[from]
	n.children = append(n.children[:from], n.children[from+1:]...)
	n.children = append(n.children[:to], append([]Item{item}, n.children[to:]...)...)
}

// walk visits n and its subtree depth first, parents before children.
func (n *Node) walk(fn func(Item)) {
	fn(n.self)
	for _, c := range n.children {
		c.base().walk(fn)
	}
}
