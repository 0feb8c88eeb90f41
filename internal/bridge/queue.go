package bridge

import (
	"errors"
	"sync"

	"github.com/beeper/ledger-installer/internal/metrics"
)

var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO. Push never blocks on a slow reader; items are
// buffered by a pump goroutine until the reader takes them.
type Queue[T any] struct {
	name string
	in   chan T
	out  chan T
	done chan struct{}
	once sync.Once
}

func NewQueue[T any](name string) *Queue[T] {
	q := &Queue[T]{
		name: name,
		in:   make(chan T),
		out:  make(chan T),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *Queue[T]) pump() {
	defer close(q.out)

	depth := metrics.BridgeQueueDepth.WithLabelValues(q.name)
	defer depth.Set(0)

	var buf []T
	for {
		var (
			out  chan T
			next T
		)
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}

		select {
		case v := <-q.in:
			buf = append(buf, v)
		case out <- next:
			var zero T
			buf[0] = zero
			buf = buf[1:]
		case <-q.done:
			return
		}
		depth.Set(float64(len(buf)))
	}
}

// Push enqueues v. It only fails once the queue has been closed.
func (q *Queue[T]) Push(v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.in <- v:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

// C is closed after Close; anything still buffered at that point is dropped.
func (q *Queue[T]) C() <-chan T {
	return q.out
}

func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}
