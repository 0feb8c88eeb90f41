// Package bridge connects the device client to its consumers with a pair of
// unbounded, asynchronous queues. Delivery is best-effort: a message sent to a
// peer that has gone away is logged and dropped.
package bridge

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Endpoint is one side of a duplex pair: it receives In and sends Out.
type Endpoint[In, Out any] struct {
	log  zerolog.Logger
	recv *Queue[In]
	send *Queue[Out]
}

// NewPair returns two connected endpoints. Whatever a sends, b receives, and
// the other way around.
func NewPair[A, B any](name string) (*Endpoint[B, A], *Endpoint[A, B]) {
	logger := log.With().
		Str("component", "bridge").
		Str("bridge", name).
		Logger()

	aToB := NewQueue[A](name + "_out")
	bToA := NewQueue[B](name + "_in")

	return &Endpoint[B, A]{log: logger, recv: bToA, send: aToB},
		&Endpoint[A, B]{log: logger, recv: aToB, send: bToA}
}

// Send delivers msg to the peer without blocking.
func (e *Endpoint[In, Out]) Send(msg Out) {
	if err := e.send.Push(msg); err != nil {
		e.log.Debug().Err(err).Msg("Failed to send message, peer is gone")
	}
}

// Loopback puts msg on this endpoint's own inbound queue, behind anything the
// peer has already sent.
func (e *Endpoint[In, Out]) Loopback(msg In) {
	if err := e.recv.Push(msg); err != nil {
		e.log.Debug().Err(err).Msg("Failed to loop message back")
	}
}

func (e *Endpoint[In, Out]) Recv() <-chan In {
	return e.recv.C()
}

// Close stops both directions. Messages still queued are dropped.
func (e *Endpoint[In, Out]) Close() {
	e.recv.Close()
	e.send.Close()
}
