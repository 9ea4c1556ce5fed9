package engine

import (
	"context"
	"sync"
)

// Task is one unit of blocking work: a directory scan or a file copy. It must
// report results to the queue through Loop.Post only.
type Task func(ctx context.Context)

// TaskChannel carries tasks to the workers.
type TaskChannel chan Task

// WorkerPool manages a dynamic set of workers processing tasks.
type WorkerPool struct {
	tasks TaskChannel

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	workers     map[int]chan struct{}
	workerCount int
	nextID      int
	wg          sync.WaitGroup
}

// NewWorkerPool creates a new dynamic worker pool reading from tasks.
func NewWorkerPool(ctx context.Context, tasks TaskChannel) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		tasks:   tasks,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[int]chan struct{}),
	}
}

// Submit hands task to the workers without blocking the caller. When the
// channel is full the send is finished by a helper goroutine.
func (p *WorkerPool) Submit(task Task) {
	select {
	case p.tasks <- task:
		return
	default:
	}

	go func() {
		select {
		case p.tasks <- task:
		case <-p.ctx.Done():
		}
	}()
}

// SetWorkerCount scales the number of workers up or down gracefully.
func (p *WorkerPool) SetWorkerCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.workerCount < count {
		p.addWorker()
	}

	for p.workerCount > count {
		p.removeWorker()
	}
}

// WorkerCount returns the current target number of workers.
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

func (p *WorkerPool) addWorker() {
	quitChan := make(chan struct{})
	id := p.nextID
	p.nextID++
	p.workers[id] = quitChan
	p.workerCount++
	p.wg.Add(1)

	go func(quit chan struct{}) {
		defer p.wg.Done()
		for {
			// Prioritize quit and context cancellation checking
			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			default:
			}

			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			case task, ok := <-p.tasks:
				if !ok {
					return
				}
				task(p.ctx)
			}
		}
	}(quitChan)
}

func (p *WorkerPool) removeWorker() {
	for id, quit := range p.workers {
		close(quit) // the worker exits after its current task
		delete(p.workers, id)
		p.workerCount--
		return
	}
}

// Stop initiates termination of all workers and waits for them to exit.
// Running tasks see their context cancelled.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}
