package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/beeper/ledger-installer/internal/ledger"
	"github.com/beeper/ledger-installer/internal/metrics"
)

var upgrader = websocket.Upgrader{}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *api) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.Status())
}

func (a *api) postCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := ledger.ParseCommand(chi.URLParam(r, "command"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, responseData{Error: err.Error()})
		return
	}

	a.hub.Command(cmd)
	writeJSON(w, http.StatusAccepted, responseData{OK: true})
}

func (a *api) resetAlarm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.ResetAlarm())
}

func (a *api) eventsWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	s, err := a.hub.subscribe()
	if err != nil {
		a.log.Err(err).Msg("Failed to subscribe consumer")
		return
	}
	defer a.hub.unsubscribe(s)

	metrics.ConsumerWebsockets.Inc()
	defer metrics.ConsumerWebsockets.Dec()

	log := a.log.With().Str("session_id", s.id).Logger()
	log.Info().Msg("Consumer connected")

	go writePump(conn, s, log)
	a.readLoop(conn, s, log)

	log.Info().Msg("Consumer disconnected")
}

// writePump is the only writer on conn. It ends when the hub drops the
// session, and closes conn so the read loop ends too.
func writePump(conn *websocket.Conn, s *session, log zerolog.Logger) {
	defer conn.Close()
	for buf := range s.send {
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			log.Debug().Err(err).Msg("Websocket write error")
			return
		}
	}
}

func (a *api) readLoop(conn *websocket.Conn, s *session, log zerolog.Logger) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("Websocket read error")
			return
		}

		var raw RawCommand[json.RawMessage]
		if err := json.Unmarshal(message, &raw); err != nil {
			log.Err(err).Msg("Failed to decode websocket message")
			return
		}

		switch raw.Command {
		case "ping":
			a.hub.reply(s, Envelope[struct{}]{Type: typePong, ReqID: raw.ReqID})
		case "reset_alarm":
			a.hub.ResetAlarm()
			a.hub.reply(s, Envelope[responseData]{Type: typeResponse, ReqID: raw.ReqID, Data: responseData{OK: true}})
		default:
			cmd, err := ledger.ParseCommand(raw.Command)
			if err != nil {
				log.Warn().Str("command", raw.Command).Msg("Received unknown command")
				a.hub.reply(s, Envelope[responseData]{Type: typeResponse, ReqID: raw.ReqID, Data: responseData{Error: err.Error()}})
				continue
			}
			a.hub.Command(cmd)
			a.hub.reply(s, Envelope[responseData]{Type: typeResponse, ReqID: raw.ReqID, Data: responseData{OK: true}})
		}
	}
}
