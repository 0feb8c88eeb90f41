package api

import (
	"encoding/json"
	"fmt"

	"github.com/beeper/ledger-installer/internal/ledger"
)

const (
	typeStatus   = "status"
	typeResponse = "response"
	typePong     = "pong"
)

// RawCommand is what a consumer sends over the events websocket.
type RawCommand[T any] struct {
	Command string `json:"command"`
	ReqID   int    `json:"id"`
	Data    T      `json:"data"`
}

// Envelope is what the relay pushes to consumers.
type Envelope[T any] struct {
	Type  string `json:"type"`
	ReqID int    `json:"id,omitempty"`
	Data  T      `json:"data"`
}

type responseData struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func encodeEvent(ev ledger.Event) ([]byte, error) {
	return json.Marshal(Envelope[ledger.Event]{Type: ledger.EventType(ev), Data: ev})
}

// DecodeEvent turns a pushed envelope back into an event. ok is false for
// envelopes that do not carry an event, such as status snapshots.
func DecodeEvent(typ string, data json.RawMessage) (ev ledger.Event, ok bool, err error) {
	switch typ {
	case "connected":
		ev, err = decodeAs[ledger.Connected](data)
	case "main_app_version":
		ev, err = decodeAs[ledger.MainAppVersion](data)
	case "main_app_next_version":
		ev, err = decodeAs[ledger.MainAppNextVersion](data)
	case "test_app_version":
		ev, err = decodeAs[ledger.TestAppVersion](data)
	case "test_app_next_version":
		ev, err = decodeAs[ledger.TestAppNextVersion](data)
	case "display_message":
		ev, err = decodeAs[ledger.DisplayMessage](data)
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", typ, err)
	}
	return ev, true, nil
}

func decodeAs[T ledger.Event](data json.RawMessage) (ledger.Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
