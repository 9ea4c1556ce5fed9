package engine

import (
	"io"
	"sync"
	"time"

	"github.com/franksops/gofastq/store"
)

// CheckpointConfig defines the criteria for when to save a transfer's state
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

// JobTracker records file transfer checkpoints in a store. A tracker without
// a store still reports progress but persists nothing.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
}

// NewJobTracker creates a new JobTracker. st may be nil.
func NewJobTracker(st store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  st,
		config: config,
	}
}

// JobKey is the checkpoint key of a transfer from src to dst.
func JobKey(src, dst string) string {
	return src + " -> " + dst
}

// InitJob records a pending attempt of a transfer.
func (jt *JobTracker) InitJob(key, src, dst string, total int64, attempt int) error {
	if jt.store == nil {
		return nil
	}
	record := &store.JobRecord{
		ID:              key,
		SourcePath:      src,
		DestinationPath: dst,
		State:           store.StatePending,
		TotalBytes:      total,
		Attempts:        attempt,
	}
	return jt.store.SaveJob(record)
}

func (jt *JobTracker) update(key string, fn func(*store.JobRecord)) error {
	if jt.store == nil {
		return nil
	}
	record, err := jt.store.GetJob(key)
	if err != nil {
		return err
	}
	fn(record)
	return jt.store.SaveJob(record)
}

// MarkInProgress updates a job's state to InProgress
func (jt *JobTracker) MarkInProgress(key string) error {
	return jt.update(key, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted updates a job's state to Completed
func (jt *JobTracker) MarkCompleted(key string) error {
	return jt.update(key, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = r.TotalBytes
		r.Error = ""
	})
}

// MarkFailed updates a job's state to Failed with an error message
func (jt *JobTracker) MarkFailed(key string, err error) error {
	return jt.update(key, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// TrackedWriter wraps an io.Writer to count bytes, report progress and
// checkpoint them.
type TrackedWriter struct {
	io.Writer
	tracker  *JobTracker
	key      string
	progress func(n int64)

	mu              sync.Mutex
	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a new TrackedWriter. progress, if not nil, is
// called with the size of every successful write.
func (jt *JobTracker) NewTrackedWriter(w io.Writer, key string, startBytes int64, progress func(n int64)) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         jt,
		key:             key,
		progress:        progress,
		bytesWritten:    startBytes,
		lastCheckpoint:  startBytes,
		lastCheckpointT: time.Now(),
	}
}

// Write implements io.Writer and checkpoints progress
func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n > 0 {
		if tw.progress != nil {
			tw.progress(int64(n))
		}

		tw.mu.Lock()
		tw.bytesWritten += int64(n)

		needsCheckpoint := false
		if tw.bytesWritten-tw.lastCheckpoint >= tw.tracker.config.BytesInterval {
			needsCheckpoint = true
		} else if time.Since(tw.lastCheckpointT) >= tw.tracker.config.TimeInterval {
			needsCheckpoint = true
		}

		currentBytes := tw.bytesWritten
		tw.mu.Unlock()

		if needsCheckpoint {
			tw.checkpoint(currentBytes)
		}
	}
	return n, err
}

func (tw *TrackedWriter) checkpoint(bytes int64) {
	// a failed checkpoint never fails the copy
	err := tw.tracker.update(tw.key, func(r *store.JobRecord) {
		r.BytesTransferred = bytes
	})
	if err != nil {
		return
	}

	tw.mu.Lock()
	tw.lastCheckpoint = bytes
	tw.lastCheckpointT = time.Now()
	tw.mu.Unlock()
}

// BytesWritten returns the total number of bytes written
func (tw *TrackedWriter) BytesWritten() int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten
}
