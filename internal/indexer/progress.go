package indexer

import "sync"

type progressEvent struct{ done, total int }

// reporter delivers progress on its own goroutine so a slow callback never
// stalls a batch. Events are queued without bound and delivered in order.
type reporter struct {
	fn ProgressFunc

	mu     sync.Mutex
	queue  []progressEvent
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newReporter(fn ProgressFunc) *reporter {
	r := &reporter{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if fn == nil {
		close(r.done)
		return r
	}
	go r.run()
	return r
}

func (r *reporter) report(done, total int) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, progressEvent{done, total})
	r.mu.Unlock()
	r.signal()
}

func (r *reporter) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *reporter) run() {
	defer close(r.done)
	for range r.wake {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, ev := range batch {
			r.fn(ev.done, ev.total)
		}
		if closed {
			r.mu.Lock()
			empty := len(r.queue) == 0
			r.mu.Unlock()
			if empty {
				return
			}
		}
	}
}

// close delivers everything queued, then stops the goroutine.
func (r *reporter) close() {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}
