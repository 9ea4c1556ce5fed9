package engine

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/franksops/gofastq/config"
	"github.com/franksops/gofastq/store"
)

// FailedTransfer is an entry of the failed registry: a transfer detached
// from the queue after its last attempt failed.
type FailedTransfer struct {
	item runnable
	err  string
	at   time.Time
}

func (f *FailedTransfer) ID() uint64 { return f.item.ID() }

// Item is the detached *Transfer or *Directory.
func (f *FailedTransfer) Item() Item { return f.item }

func (f *FailedTransfer) Transfer() *Transfer { return f.item.transfer() }

// Err is the text of the final error.
func (f *FailedTransfer) Err() string { return f.err }

// At is when the transfer failed.
func (f *FailedTransfer) At() time.Time { return f.at }

// isConnectionLoss reports whether err means the channel itself is unusable.
func isConnectionLoss(err error) bool {
	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (m *Manager) shouldRetry(t *Transfer, lost bool) bool {
	if t.kind != KindFile || !m.cfg.Retry.Enabled || t.retries >= m.cfg.Retry.Count {
		return false
	}
	return !lost || m.cfg.Queue.OnConnectionLoss != config.OnLossFail
}

// handleError ends the current attempt of r. File transfers go through the
// retry policy unless fatal; everything else fails for good.
func (m *Manager) handleError(r runnable, err error, fatal bool) {
	t := r.transfer()
	t.lastErr = err

	lost := isConnectionLoss(err)
	if lost {
		t.markConnectionsBroken()
	}
	t.stopRun()
	if d, ok := r.(*Directory); ok {
		d.halt()
	}

	if m.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		t.resetProgress()
		t.setStatus(StatusStopped)
		t.sig.interrupted.Emit(r)
		return
	}

	if !fatal && m.shouldRetry(t, lost) {
		m.logger.Warn("transfer failed, retrying",
			"id", t.id, "source", DisplayLocation(t.src), "dest", DisplayLocation(t.dst),
			"attempt", t.retries+1, "of", m.cfg.Retry.Count, "connection_lost", lost, "error", err)
		t.scheduleRetry(m.cfg.Retry.AttemptDelay())
		return
	}
	m.fail(r, err)
}

// fail moves r from the queue into the failed registry.
func (m *Manager) fail(r runnable, err error) {
	t := r.transfer()
	t.resetProgress()
	m.logger.Error("transfer failed",
		"id", t.id, "source", DisplayLocation(t.src), "dest", DisplayLocation(t.dst),
		"retries", t.retries, "error", err)

	m.removeItem(r)
	t.status = StatusFailed

	ft := &FailedTransfer{item: r, err: err.Error(), at: time.Now()}
	m.failed = append(m.failed, ft)
	m.observer.FailedAdded(ft)
	t.sig.interrupted.Emit(r)
}

// Failed returns the failed registry in failure order.
func (m *Manager) Failed() []*FailedTransfer {
	return append([]*FailedTransfer(nil), m.failed...)
}

func (m *Manager) failedIndex(id uint64) int {
	for i, ft := range m.failed {
		if ft.ID() == id {
			return i
		}
	}
	return -1
}

func (m *Manager) dropFailed(i int) *FailedTransfer {
	ft := m.failed[i]
	m.observer.FailedRemoving(ft)
	m.failed = append(m.failed[:i], m.failed[i+1:]...)
	m.observer.FailedRemoved()
	return ft
}

// Restore puts the failed transfer id back into the queue with a fresh retry
// budget. It is not started.
func (m *Manager) Restore(id uint64) (Item, error) {
	i := m.failedIndex(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	ft := m.dropFailed(i)

	t := ft.item.transfer()
	t.retries = 0
	t.done = false
	t.lastErr = nil
	t.status = StatusStopped

	e := m.endpointFor(t)
	m.attach(&e.Node, ft.item)
	m.logger.Info("transfer restored", "id", t.id, "source", DisplayLocation(t.src))
	return ft.item, nil
}

// ClearFailed empties the failed registry.
func (m *Manager) ClearFailed() {
	for len(m.failed) > 0 {
		m.dropFailed(len(m.failed) - 1)
	}
}

// FailedRecords is the persistent form of the failed registry.
func (m *Manager) FailedRecords() []store.FailedRecord {
	records := make([]store.FailedRecord, 0, len(m.failed))
	for _, ft := range m.failed {
		t := ft.Transfer()
		records = append(records, store.FailedRecord{
			Source:  documentLocation(t.src),
			Dest:    documentLocation(t.dst),
			Size:    t.Size(),
			Retries: t.retries,
			Error:   ft.err,
			Dir:     t.kind == KindDirectory,
		})
	}
	return records
}

// ImportFailed fills the failed registry from persisted records.
func (m *Manager) ImportFailed(records []store.FailedRecord) error {
	var errs []error
	for _, rec := range records {
		src, dst, dir, err := m.locations(rec.Source, rec.Dest)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var r runnable
		if rec.Dir {
			r = m.newDirectory(src, dst, dir, TransferOptions{})
		} else {
			r = m.newTransfer(src, dst, dir, rec.Size, TransferOptions{})
		}
		t := r.transfer()
		m.nextID++
		t.id = m.nextID
		t.retries = rec.Retries
		t.status = StatusFailed

		ft := &FailedTransfer{item: r, err: rec.Error, at: time.Now()}
		m.failed = append(m.failed, ft)
		m.observer.FailedAdded(ft)
	}
	return errors.Join(errs...)
}
