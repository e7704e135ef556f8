package longpoll

import (
	"container/heap"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
	"github.com/ajsutton/disruptedLongPoll/pkg/ringbuffer"
)

// unreachable is the target of a wait that no sequence can satisfy. It sorts
// after every real target and is never released.
const unreachable int64 = math.MaxInt64

// PendingWait is a parked request for the next notification.
type PendingWait struct {
	id       uuid.UUID
	target   int64
	onReady  func(error)
	once     sync.Once
	index    int
	registry *waitRegistry
}

// ID returns the identifier used in logs.
func (w *PendingWait) ID() string {
	return w.id.String()
}

// Target returns the sequence the wait is resolved at.
func (w *PendingWait) Target() int64 {
	return w.target
}

// Cancel withdraws the wait. It returns false when the wait was already handed
// to a dispatch worker, in which case the callback still runs.
func (w *PendingWait) Cancel() bool {
	if w.registry == nil {
		return false
	}
	return w.registry.remove(w)
}

func (w *PendingWait) resolve(err error) {
	w.once.Do(func() { w.onReady(err) })
}

// waitHeap orders pending waits by target sequence.
type waitHeap []*PendingWait

func (h waitHeap) Len() int           { return len(h) }
func (h waitHeap) Less(i, j int) bool { return h[i].target < h[j].target }

func (h waitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitHeap) Push(x any) {
	w := x.(*PendingWait)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

type dispatch struct {
	wait *PendingWait
	err  error
}

// waitRegistry parks waits in a heap and resolves them from one dispatcher
// goroutine plus a fixed pool of workers, so idle waits hold no goroutine.
type waitRegistry struct {
	mu      sync.Mutex
	pending waitHeap
	closed  bool

	visible *ringbuffer.Sequence
	alerter *ringbuffer.Alerter
	kick    chan struct{}
	ready   chan dispatch
	workers int
	logger  *slog.Logger
}

func newWaitRegistry(visible *ringbuffer.Sequence, alerter *ringbuffer.Alerter, o *options, log *slog.Logger) *waitRegistry {
	return &waitRegistry{
		visible: visible,
		alerter: alerter,
		kick:    make(chan struct{}, 1),
		ready:   make(chan dispatch, o.dispatchQueueSize),
		workers: o.dispatchWorkers,
		logger:  log,
	}
}

func (r *waitRegistry) register(target int64, onReady func(error)) *PendingWait {
	w := &PendingWait{
		id:       uuid.New(),
		target:   target,
		onReady:  onReady,
		index:    -1,
		registry: r,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		go r.run(dispatch{wait: w, err: ErrCancelled})
		return w
	}
	heap.Push(&r.pending, w)
	r.mu.Unlock()

	r.logger.Debug("pending wait registered", logger.WaitID(w.ID()), logger.Sequence(target))

	// The dispatcher may have scanned before the push; make it look again.
	if target != unreachable && r.visible.Get() >= target {
		r.wake()
	}
	return w
}

func (r *waitRegistry) remove(w *PendingWait) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.index < 0 {
		return false
	}
	heap.Remove(&r.pending, w.index)
	return true
}

func (r *waitRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Len()
}

func (r *waitRegistry) wake() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// start launches the dispatcher and the workers, tracked by wg.
func (r *waitRegistry) start(wg *sync.WaitGroup) {
	wg.Add(1 + r.workers)
	go func() {
		defer wg.Done()
		r.dispatchLoop()
	}()
	for range r.workers {
		go func() {
			defer wg.Done()
			for d := range r.ready {
				r.run(d)
			}
		}()
	}
}

func (r *waitRegistry) dispatchLoop() {
	defer close(r.ready)
	for {
		changed := r.visible.Changed()
		r.release(r.visible.Get())

		select {
		case <-changed:
		case <-r.kick:
		case <-r.alerter.Done():
			cancelled := r.close()
			for _, w := range cancelled {
				r.ready <- dispatch{wait: w, err: ErrCancelled}
			}
			if len(cancelled) > 0 {
				r.logger.Info("pending waits cancelled by shutdown", slog.Int("count", len(cancelled)))
			}
			return
		}
	}
}

// release hands every wait whose target is visible to the workers.
func (r *waitRegistry) release(visible int64) {
	r.mu.Lock()
	var due []*PendingWait
	for r.pending.Len() > 0 && r.pending[0].target <= visible && r.pending[0].target != unreachable {
		due = append(due, heap.Pop(&r.pending).(*PendingWait))
	}
	r.mu.Unlock()

	for _, w := range due {
		r.ready <- dispatch{wait: w}
	}
}

// close stops accepting waits and returns the ones still parked.
func (r *waitRegistry) close() []*PendingWait {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	cancelled := make([]*PendingWait, 0, r.pending.Len())
	for r.pending.Len() > 0 {
		cancelled = append(cancelled, heap.Pop(&r.pending).(*PendingWait))
	}
	return cancelled
}

// abandon cancels parked waits when the dispatcher never started.
func (r *waitRegistry) abandon() {
	for _, w := range r.close() {
		go r.run(dispatch{wait: w, err: ErrCancelled})
	}
}

func (r *waitRegistry) run(d dispatch) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("pending wait callback panicked",
				logger.WaitID(d.wait.ID()),
				logger.Error(fmt.Errorf("panic: %v", rec)))
		}
	}()
	d.wait.resolve(d.err)
}
