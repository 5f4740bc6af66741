package replication

import (
	"sync"
)

// Pool is a fixed-size worker pool. Two distinct pools back the
// coordinator: one runs dispatch/retry work, the other runs caller-facing
// quorum waits, so a caller blocked on acknowledgments can never starve
// dispatch workers.
type Pool struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts size workers. Submissions beyond the queue depth block
// until a worker frees up.
func NewPool(size int) *Pool {
	p := &Pool{
		tasks: make(chan func(), size),
		quit:  make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.quit:
					return
				case task := <-p.tasks:
					task()
				}
			}
		}()
	}
	return p
}

// Submit enqueues a task, blocking while all workers are busy and the queue
// is full. Returns false once the pool is closed; retry sequences landing
// after shutdown are dropped, not run.
func (p *Pool) Submit(task func()) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	case <-p.quit:
		return false
	}
}

// Done returns a channel closed when the pool shuts down. Tasks that park
// must select on it so Close never waits on a blocked worker.
func (p *Pool) Done() <-chan struct{} {
	return p.quit
}

// Close stops the workers. In-flight tasks finish; queued tasks are
// discarded.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
