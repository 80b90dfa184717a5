package workers

import (
	"sync"
)

// Pool runs jobs on a fixed set of goroutines. Submissions never block the
// caller; when the queue is full the job is dropped and Submit reports it.
type Pool struct {
	jobCh    chan func()
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPool starts a pool with the given worker count and queue capacity.
func NewPool(workerCount, queueSize int) *Pool {
	p := &Pool{
		jobCh: make(chan func(), queueSize),
	}
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for job := range p.jobCh {
		job()
	}
}

// Submit enqueues a job without blocking. Returns false when the queue is
// full and the job was dropped.
func (p *Pool) Submit(job func()) bool {
	p.wg.Add(1)
	select {
	case p.jobCh <- func() {
		defer p.wg.Done()
		job()
	}:
		return true
	default:
		p.wg.Done()
		return false
	}
}

// Wait blocks until every accepted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop drains the queue and shuts the workers down. Safe to call more than
// once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobCh)
		p.wg.Wait()
	})
}
