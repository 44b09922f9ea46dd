// Package commandqueue is the scheduled-command executor: a single
// dedicated worker draining a priority queue of deferred callbacks
// ordered by earliest-execution time, with submission-order tiebreak and
// merge-key collapse.
package commandqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// MergeKey identifies commands that should collapse into one pending
// entry when resubmitted. The event bus uses (plugin-name, event-kind,
// class-identity); other callers are free to use any comparable key,
// including the zero value to mean "never merge".
type MergeKey struct {
	Plugin   string
	Kind     string
	Identity string
}

// Payload is the deferred callback body. It runs with the owning loader
// already resolved; ctx is the context passed to Run, so it is cancelled
// when that context is, not by Shutdown.
type Payload func(ctx context.Context, loader runtimeiface.Loader)

type command struct {
	loader   runtimeiface.Loader
	payload  Payload
	earliest time.Time
	seq      uint64
	mergeKey MergeKey
	merges   bool
	index    int
}

type commandHeap []*command

func (h commandHeap) Len() int { return len(h) }
func (h commandHeap) Less(i, j int) bool {
	if !h[i].earliest.Equal(h[j].earliest) {
		return h[i].earliest.Before(h[j].earliest)
	}
	return h[i].seq < h[j].seq
}
func (h commandHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *commandHeap) Push(x any) {
	c := x.(*command)
	c.index = len(*h)
	*h = append(*h, c)
}
func (h *commandHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// IsReclaimed reports whether loader has already been reclaimed; a
// reclaimed loader's commands are dropped silently on execution. Callers
// wire this to pkg/loaderreg.
type IsReclaimed func(runtimeiface.Loader) bool

// Queue is the priority queue plus its single worker goroutine.
type Queue struct {
	mu          sync.Mutex
	items       commandHeap
	byKey       map[MergeKey]*command
	seq         uint64
	wake        chan struct{}
	isReclaimed IsReclaimed

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	drainedCh    chan struct{}
}

// New constructs an empty queue. isReclaimed may be nil, in which case no
// command is ever dropped for loader reclamation (useful in tests against
// pkg/fakeruntime where loaders never go away).
func New(isReclaimed IsReclaimed) *Queue {
	return &Queue{
		byKey:       make(map[MergeKey]*command),
		wake:        make(chan struct{}, 1),
		isReclaimed: isReclaimed,
		shutdownCh:  make(chan struct{}),
		drainedCh:   make(chan struct{}),
	}
}

// Submit enqueues payload to run no earlier than delay from now, owned by
// loader. If mergeKey is non-zero and an entry with the same key is still
// pending, that entry is updated in place instead of adding a second
// entry — the later submission resets the timer.
func (q *Queue) Submit(loader runtimeiface.Loader, mergeKey MergeKey, delay time.Duration, payload Payload) {
	q.mu.Lock()
	defer q.mu.Unlock()

	earliest := timeNow().Add(delay)
	merges := mergeKey != (MergeKey{})

	if merges {
		if existing, ok := q.byKey[mergeKey]; ok {
			existing.loader = loader
			existing.payload = payload
			existing.earliest = earliest
			existing.seq = q.nextSeq()
			heap.Fix(&q.items, existing.index)
			q.notify()
			return
		}
	}

	c := &command{
		loader:   loader,
		payload:  payload,
		earliest: earliest,
		seq:      q.nextSeq(),
		mergeKey: mergeKey,
		merges:   merges,
	}
	heap.Push(&q.items, c)
	if merges {
		q.byKey[mergeKey] = c
	}
	q.notify()
}

func (q *Queue) nextSeq() uint64 {
	q.seq++
	return q.seq
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drives the single worker loop until ctx is cancelled or Shutdown is
// called; it returns once the queue has been drained.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.drainedCh)
	for {
		c, wait, hasItem := q.popDue()
		if c != nil {
			q.execute(ctx, c)
			continue
		}

		if !hasItem {
			select {
			case <-q.wake:
				continue
			case <-q.shutdownCh:
				q.drain()
				return
			case <-ctx.Done():
				q.drain()
				return
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-q.wake:
			timer.Stop()
		case <-q.shutdownCh:
			timer.Stop()
			q.drain()
			return
		case <-ctx.Done():
			timer.Stop()
			q.drain()
			return
		}
	}
}

// popDue pops and returns the earliest-due command if one is already due.
// Otherwise it reports whether any command is pending at all, and if so
// how long until the earliest one becomes due.
func (q *Queue) popDue() (c *command, wait time.Duration, hasItem bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, 0, false
	}
	head := q.items[0]
	wait = head.earliest.Sub(timeNow())
	if wait > 0 {
		return nil, wait, true
	}
	popped := heap.Pop(&q.items).(*command)
	if popped.merges {
		delete(q.byKey, popped.mergeKey)
	}
	return popped, 0, true
}

func (q *Queue) execute(ctx context.Context, c *command) {
	if q.isReclaimed != nil && q.isReclaimed(c.loader) {
		return
	}
	c.payload(ctx, c.loader)
}

func (q *Queue) drain() {
	q.mu.Lock()
	q.items = nil
	q.byKey = make(map[MergeKey]*command)
	q.mu.Unlock()
}

// Shutdown stops the worker loop; pending commands are discarded but
// in-flight commands are allowed to finish.
func (q *Queue) Shutdown() {
	q.shutdownOnce.Do(func() { close(q.shutdownCh) })
	<-q.drainedCh
}

// Len reports the number of commands currently pending, for tests and
// diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

var timeNow = time.Now
