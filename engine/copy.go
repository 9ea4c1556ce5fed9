package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/franksops/gofastq/provider"
)

// DefaultBufferSize is the size of the byte buffers used to copy files.
const DefaultBufferSize = 1 * 1024 * 1024

// ProgressInterval is the minimum time between progress reports of one copy.
const ProgressInterval = 250 * time.Millisecond

// BufferPool manages reusable byte buffers to minimize GC overhead during
// large transfers.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new BufferPool that allocates buffers of the specified size.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a reusable byte buffer from the pool.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns the byte buffer to the pool.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil {
		bp.pool.Put(b)
	}
}

// progressMeter smooths copy throughput with an EWMA and forwards it to the
// loop at most once per ProgressInterval.
type progressMeter struct {
	post   func(func())
	report func(delta, speed int64)
	now    func() time.Time

	mu       sync.Mutex
	alpha    float64
	rate     float64
	pending  int64
	lastAt   time.Time
	lastSent time.Time
}

func newProgressMeter(loop *Loop, report func(delta, speed int64)) *progressMeter {
	now := time.Now()
	return &progressMeter{
		post:     loop.Post,
		report:   report,
		now:      time.Now,
		alpha:    0.2,
		lastAt:   now,
		lastSent: now,
	}
}

func (p *progressMeter) add(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	now := p.now()
	p.pending += n
	if dt := now.Sub(p.lastAt).Seconds(); dt > 0 {
		inst := float64(n) / dt
		if p.rate == 0 {
			p.rate = inst
		} else {
			p.rate = p.alpha*inst + (1-p.alpha)*p.rate
		}
		p.lastAt = now
	}
	if now.Sub(p.lastSent) < ProgressInterval {
		p.mu.Unlock()
		return
	}
	delta, speed := p.pending, int64(p.rate)
	p.pending = 0
	p.lastSent = now
	p.mu.Unlock()

	p.post(func() { p.report(delta, speed) })
}

// flush forwards bytes not reported yet.
func (p *progressMeter) flush() {
	p.mu.Lock()
	delta, speed := p.pending, int64(p.rate)
	p.pending = 0
	p.mu.Unlock()
	if delta > 0 {
		p.post(func() { p.report(delta, speed) })
	}
}

type copyJob struct {
	key              string
	src, dst         provider.Provider
	srcPath, dstPath string
	srcName, dstName string
	size             int64
	deleteSource     bool
	attempt          int
}

// copier moves the bytes of one file. It runs on a worker.
type copier struct {
	tracker *JobTracker
	buffers *BufferPool
	logger  *slog.Logger
}

func (c *copier) run(ctx context.Context, job copyJob, progress func(int64)) error {
	if err := c.tracker.InitJob(job.key, job.srcName, job.dstName, job.size, job.attempt); err != nil {
		c.logger.Debug("checkpoint init failed", "job", job.key, "error", err)
	}
	c.checkpointed(job.key, "in_progress", c.tracker.MarkInProgress(job.key))

	err := c.copy(ctx, job, progress)
	if err != nil {
		c.checkpointed(job.key, "failed", c.tracker.MarkFailed(job.key, err))
		return err
	}

	if job.deleteSource {
		if err := job.src.Remove(ctx, job.srcPath); err != nil {
			err = fmt.Errorf("delete source %s: %w", job.srcName, err)
			c.checkpointed(job.key, "failed", c.tracker.MarkFailed(job.key, err))
			return err
		}
	}
	c.checkpointed(job.key, "completed", c.tracker.MarkCompleted(job.key))
	return nil
}

func (c *copier) checkpointed(key, state string, err error) {
	if err != nil {
		c.logger.Debug("checkpoint update failed", "job", key, "state", state, "error", err)
	}
}

func (c *copier) copy(ctx context.Context, job copyJob, progress func(int64)) (err error) {
	r, err := job.src.OpenRead(ctx, job.srcPath)
	if err != nil {
		return fmt.Errorf("open source %s: %w", job.srcName, err)
	}
	defer r.Close()

	meta := provider.NewFileInfo(path.Base(job.srcPath), job.size, false, time.Time{})
	if info, statErr := job.src.Stat(ctx, job.srcPath); statErr == nil {
		meta = info
	}

	w, err := job.dst.OpenWrite(ctx, job.dstPath, meta)
	if err != nil {
		return fmt.Errorf("open destination %s: %w", job.dstName, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close destination %s: %w", job.dstName, cerr)
		}
	}()

	tw := c.tracker.NewTrackedWriter(w, job.key, 0, progress)
	buf := c.buffers.Get()
	defer c.buffers.Put(buf)

	if _, err = io.CopyBuffer(tw, contextReader{ctx: ctx, r: r}, *buf); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("copy %s: %w", job.srcName, err)
	}
	return nil
}

// contextReader stops a copy between reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
