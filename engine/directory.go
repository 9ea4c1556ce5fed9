package engine

import (
	"context"
	"fmt"

	"github.com/franksops/gofastq/session"
)

// ExecMode controls what executing a Directory does.
type ExecMode int

const (
	// ModeDefault runs the children, scanning first when none are known.
	ModeDefault ExecMode = iota
	// ModeIgnore completes the directory without doing anything.
	ModeIgnore
	// ModeScanOnly lists the source but does not run the children.
	ModeScanOnly
	// ModeScanWithExecute lists the source and runs the children after.
	ModeScanWithExecute
)

func (e ExecMode) String() string {
	switch e {
	case ModeIgnore:
		return "ignore"
	case ModeScanOnly:
		return "scan-only"
	case ModeScanWithExecute:
		return "scan-with-execute"
	}
	return "default"
}

// Directory is a container transfer. Its children run through its Group;
// until they are known it lists the source with the Scanner.
type Directory struct {
	Transfer

	group    *Group
	mode     ExecMode
	scanned  bool
	scanning bool
	scan     *ScanOp
}

func (d *Directory) Mode() ExecMode { return d.mode }

// Scanned reports whether the children came from a completed scan or a
// document.
func (d *Directory) Scanned() bool { return d.scanned }

// Scanning reports whether a listing is pending or in flight.
func (d *Directory) Scanning() bool { return d.scanning }

func (d *Directory) Group() *Group { return d.group }

func (d *Directory) childMovable(i int) bool       { return d.group.childMovable(i) }
func (d *Directory) childRemoved(i int, item Item) { d.group.childRemoved(i, item) }

func (d *Directory) busy() bool {
	return d.scanning || d.Transfer.busy()
}

func (d *Directory) execute(srcHint, dstHint session.Session) {
	if d.done || d.scan != nil {
		return
	}
	switch d.status {
	case StatusRunning, StatusLocked, StatusFailed:
		return
	}

	switch {
	case d.mode == ModeIgnore:
		d.complete()
	case !d.scanned && len(d.children) == 0:
		if d.mode != ModeScanOnly {
			d.mode = ModeScanWithExecute
		}
		d.startScan(srcHint)
	case len(d.children) == 0:
		d.makeDir(dstHint)
	default:
		d.setStatus(StatusRunning)
		d.group.start()
	}
}

// scanOnly lists the source without running the children afterwards.
func (d *Directory) scanOnly() {
	if d.busy() || d.done {
		return
	}
	d.mode = ModeScanOnly
	d.startScan(nil)
}

func (d *Directory) startScan(srcHint session.Session) {
	d.scanning = true
	needSrc, _ := d.needs()
	if !d.prepare(needSrc, false, srcHint, nil) {
		return
	}

	m := d.m
	op := newScanOp(m.ctx)
	d.scan = op
	d.setStatus(StatusLocked)
	m.logger.Debug("scan started", "id", d.id, "source", DisplayLocation(d.src))

	lister := d.providerFor(d.src, d.srcConn)
	root := d.src.Path
	m.workers.Submit(func(ctx context.Context) {
		stop := context.AfterFunc(ctx, op.Abort)
		defer stop()

		entries, err := m.scanner.Walk(op.ctx, op, lister, root)
		m.loop.Post(func() { d.scanDone(op, entries, err) })
	})
}

func (d *Directory) scanDone(op *ScanOp, entries []*ScanEntry, err error) {
	if d.scan != op {
		return
	}
	d.scan = nil
	d.deinitializeConnections()
	if err != nil {
		d.m.handleError(d, fmt.Errorf("scan %s: %w", DisplayLocation(d.src), err), true)
		return
	}

	d.m.materialize(d, entries)
	d.scanned = true
	d.scanning = false
	d.m.logger.Debug("scan finished", "id", d.id, "source", DisplayLocation(d.src), "children", len(d.children))

	mode := d.mode
	d.mode = ModeDefault
	if mode == ModeScanWithExecute {
		// the owning group keeps waiting on the children instead of
		// seeing an idle directory
		d.Node.setStatus(StatusStopped)
		parent := d.parentGroup()
		d.execute(nil, nil)
		// siblings held back while the listing ran may start now
		if parent != nil {
			parent.pump()
		}
		return
	}
	d.setStatus(StatusStopped)
}

func (d *Directory) parentGroup() *Group {
	switch p := d.Parent().(type) {
	case *Endpoint:
		return p.group
	case *Directory:
		return p.group
	}
	return nil
}

// makeDir creates an empty directory on the destination, or completes at
// once when empty directories are skipped.
func (d *Directory) makeDir(dstHint session.Session) {
	if d.m.cfg.Queue.SkipEmptyDirs {
		d.complete()
		return
	}
	_, needDst := d.needs()
	if !d.prepare(false, needDst, nil, dstHint) {
		return
	}

	m := d.m
	d.gen++
	gen := d.gen
	ctx, cancel := context.WithCancel(m.ctx)
	d.cancel = cancel
	d.setStatus(StatusRunning)

	prov := d.providerFor(d.dst, d.dstConn)
	p := d.dst.Path
	m.workers.Submit(func(wctx context.Context) {
		stop := context.AfterFunc(wctx, cancel)
		defer stop()

		err := prov.Mkdir(ctx, p)
		m.loop.Post(func() { d.mkdirDone(gen, err) })
	})
}

func (d *Directory) mkdirDone(gen uint64, err error) {
	if gen != d.gen || d.status != StatusRunning {
		return
	}
	d.cancel()
	d.cancel = nil
	if err != nil {
		d.m.handleError(d, fmt.Errorf("mkdir %s: %w", DisplayLocation(d.dst), err), false)
		return
	}
	d.complete()
}

func (d *Directory) groupDone() {
	d.complete()
}

func (d *Directory) complete() {
	d.deinitializeConnections()
	d.SetSpeed(0)
	d.done = true
	d.setStatus(StatusStopped)
	d.m.directoryFinished(d)
}

func (d *Directory) abort() {
	if !d.busy() {
		return
	}
	d.group.stop()
	for _, c := range d.Children() {
		if r := c.(runnable); r.busy() {
			r.abort()
		}
	}
	if d.scan != nil {
		d.scan.Abort()
		d.scan = nil
	}
	d.scanning = false
	d.stopRun()
	d.SetSpeed(0)
	d.setStatus(StatusStopped)
	d.sig.interrupted.Emit(d)
}

// halt drops a pending scan without emitting anything.
func (d *Directory) halt() {
	if d.scan != nil {
		d.scan.Abort()
		d.scan = nil
	}
	d.scanning = false
	d.group.stop()
}

// materialize turns a scan result into queue nodes under parent, directories
// before files on every level.
func (m *Manager) materialize(parent *Directory, entries []*ScanEntry) {
	for _, e := range entries {
		src := childURL(parent.src, e.Name)
		dst := childURL(parent.dst, e.Name)

		if !e.Dir {
			t := m.newTransfer(src, dst, parent.direction, e.Size, parent.opts)
			m.attach(&parent.Node, t)
			continue
		}
		if m.cfg.Queue.SkipEmptyDirs && !e.hasFiles() {
			continue
		}
		d := m.newDirectory(src, dst, parent.direction, parent.opts)
		d.scanned = true
		m.attach(&parent.Node, d)
		m.materialize(d, e.Children)
	}
}
