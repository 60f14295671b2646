package watch

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collects paths and emits them as one sorted, deduplicated batch
// once no new path arrived for the delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool

	out     chan []string
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewDebouncer returns a Debouncer. A non-positive delay defaults to 100ms.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]struct{}),
		out:     make(chan []string),
		closeCh: make(chan struct{}),
	}
}

// Batches returns the output channel. It is closed by Close.
func (d *Debouncer) Batches() <-chan []string { return d.out }

// Add records a path and restarts the quiet period.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.closed || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(d.pending))
	for p := range d.pending {
		batch = append(batch, p)
	}
	d.pending = make(map[string]struct{})
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	sort.Strings(batch)
	select {
	case d.out <- batch:
	case <-d.closeCh:
	}
}

// Close drops pending paths and closes the output channel.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.closeCh)
	d.mu.Unlock()

	d.wg.Wait()
	close(d.out)
}
