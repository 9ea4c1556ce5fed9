package ui

import (
	"github.com/franksops/gofastq/engine"
)

// QueueState is a copy of what the views show. It is built on the loop
// goroutine and handed to the view afterwards.
type QueueState struct {
	TotalBytes     int64
	CompletedBytes int64
	Speed          int64
	Queued         int
	Finished       int
	Failed         []FailedRow
	Endpoints      []EndpointRow
	ActiveStreams  []*ActiveStream
	Workers        int
	Done           bool
}

// EndpointRow is one remote site of the queue.
type EndpointRow struct {
	Site     string
	Items    int
	Running  bool
	Progress float64
}

// ActiveStream is a running file transfer.
type ActiveStream struct {
	ID       uint64
	Source   string
	Progress float64 // 0.0 to 1.0
	BytesSec float64
}

// FailedRow is one entry of the failed registry.
type FailedRow struct {
	ID     uint64
	Source string
	Error  string
}

// Snapshot reads m into a QueueState. It must run on the loop goroutine.
// finished is the number of files completed so far.
func Snapshot(m *engine.Manager, finished int) *QueueState {
	totals := m.Totals()
	st := &QueueState{
		TotalBytes:     totals.Size,
		CompletedBytes: totals.Completed,
		Speed:          totals.Speed,
		Finished:       finished,
		Workers:        m.Workers(),
		Done:           m.Idle(),
	}

	for _, e := range m.Endpoints() {
		st.Endpoints = append(st.Endpoints, EndpointRow{
			Site:     e.Site().Redacted(),
			Items:    e.ChildCount(),
			Running:  e.Running(),
			Progress: e.Progress() / 100,
		})
		collect(st, e.Children())
	}
	for _, ft := range m.Failed() {
		st.Failed = append(st.Failed, FailedRow{
			ID:     ft.ID(),
			Source: engine.DisplayLocation(ft.Transfer().Source()),
			Error:  ft.Err(),
		})
	}
	return st
}

func collect(st *QueueState, items []engine.Item) {
	for _, item := range items {
		switch v := item.(type) {
		case *engine.Directory:
			collect(st, v.Children())
		case *engine.Transfer:
			if v.Finished() {
				continue
			}
			st.Queued++
			if v.Status() != engine.StatusRunning {
				continue
			}
			st.ActiveStreams = append(st.ActiveStreams, &ActiveStream{
				ID:       v.ID(),
				Source:   engine.DisplayLocation(v.Source()),
				Progress: v.Progress() / 100,
				BytesSec: float64(v.Speed()),
			})
		}
	}
}
