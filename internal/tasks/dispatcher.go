package tasks

import "sync"

// Dispatcher runs submitted functions on a fixed set of goroutines. Functions
// dispatched with the same key always land on the same goroutine and run in
// submission order.
type Dispatcher struct {
	workers []*shard
	wg      sync.WaitGroup
}

type shard struct {
	ch chan func()
}

// NewDispatcher starts n shards, each buffering up to depth pending functions
func NewDispatcher(n, depth int) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	if depth <= 0 {
		depth = 1024
	}

	d := &Dispatcher{workers: make([]*shard, n)}
	for i := range d.workers {
		s := &shard{ch: make(chan func(), depth)}
		d.workers[i] = s
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for fn := range s.ch {
				fn()
			}
		}()
	}
	return d
}

// Dispatch queues fn on the shard owning key; it blocks while that shard is full
func (d *Dispatcher) Dispatch(key int64, fn func()) {
	if key < 0 {
		key = -key
	}
	d.workers[key%int64(len(d.workers))].ch <- fn
}

// Close stops accepting work and waits for queued functions to finish
func (d *Dispatcher) Close() {
	for _, s := range d.workers {
		close(s.ch)
	}
	d.wg.Wait()
}
