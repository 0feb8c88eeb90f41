package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/ledger-installer/internal/ledger"
)

const sessionBuffer = 64

// ConsumerEndpoint is the consumer side of the messaging bridge.
type ConsumerEndpoint interface {
	Recv() <-chan ledger.Event
	Send(cmd ledger.Command)
}

type session struct {
	id   string
	send chan []byte
}

// Hub is the single consumer of client events. It keeps the reduced Status
// and forwards every event to the connected websocket sessions.
type Hub struct {
	log      zerolog.Logger
	endpoint ConsumerEndpoint

	lock     sync.Mutex
	status   Status
	sessions map[*session]struct{}
}

func NewHub(endpoint ConsumerEndpoint) *Hub {
	logger := log.With().
		Str("component", "hub").
		Logger()

	return &Hub{
		log:      logger,
		endpoint: endpoint,
		sessions: make(map[*session]struct{}),
	}
}

// Run forwards events until ctx is done or the bridge closes.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.endpoint.Recv():
			if !ok {
				h.log.Info().Msg("Event queue closed")
				return
			}
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev ledger.Event) {
	buf, err := encodeEvent(ev)
	if err != nil {
		h.log.Err(err).Msg("Failed to encode event")
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	h.status.Apply(ev)
	h.broadcastLocked(buf)
}

func (h *Hub) broadcastLocked(buf []byte) {
	for s := range h.sessions {
		select {
		case s.send <- buf:
		default:
			h.log.Warn().Str("session_id", s.id).Msg("Consumer is too slow, dropping session")
			delete(h.sessions, s)
			close(s.send)
		}
	}
}

func (h *Hub) Command(cmd ledger.Command) {
	h.log.Debug().Stringer("command", cmd).Msg("Forwarding command")
	h.endpoint.Send(cmd)
}

func (h *Hub) Status() Status {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.status
}

// ResetAlarm acknowledges the alarm for every consumer.
func (h *Hub) ResetAlarm() Status {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.status.ResetAlarm()
	if buf, err := json.Marshal(Envelope[Status]{Type: typeStatus, Data: h.status}); err == nil {
		h.broadcastLocked(buf)
	}
	return h.status
}

// subscribe registers a session and queues the current status as its first
// message, so nothing between snapshot and live events is lost.
func (h *Hub) subscribe() (*session, error) {
	s := &session{id: uuid.NewString(), send: make(chan []byte, sessionBuffer)}

	h.lock.Lock()
	defer h.lock.Unlock()

	buf, err := json.Marshal(Envelope[Status]{Type: typeStatus, Data: h.status})
	if err != nil {
		return nil, err
	}
	s.send <- buf
	h.sessions[s] = struct{}{}
	return s, nil
}

// reply queues a message for one session only.
func (h *Hub) reply(s *session, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		h.log.Err(err).Msg("Failed to encode reply")
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	select {
	case s.send <- buf:
	default:
		h.log.Warn().Str("session_id", s.id).Msg("Dropping reply, session buffer full")
	}
}

func (h *Hub) unsubscribe(s *session) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		close(s.send)
	}
}
