package device

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/beeper/ledger-installer/internal/ledger"
)

// scriptQuery is a request from the script runner.
type scriptQuery struct {
	Nonce int             `json:"nonce"`
	Query string          `json:"query"`
	Data  json.RawMessage `json:"data"`
}

type scriptReply struct {
	Nonce    int    `json:"nonce"`
	Response string `json:"response"`
	Data     string `json:"data"`
}

var statusOK = []byte{0x90, 0x00}

func installURL(base string, info ledger.DeviceInfo, desc *ledger.AppDescriptor) string {
	q := url.Values{}
	q.Set("targetId", strconv.FormatUint(uint64(info.TargetID), 10))
	q.Set("perso", desc.Perso)
	q.Set("firmware", desc.Firmware)
	q.Set("firmwareKey", desc.FirmwareKey)
	q.Set("hash", desc.Hash)
	return base + "/update/install?" + q.Encode()
}

// runScript relays APDUs between the script runner and the device until the
// runner reports success or failure.
func (m *Manager) runScript(ctx context.Context, h ledger.Handle, target string) error {
	ws, _, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect to script runner: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	for {
		var query scriptQuery
		if err := ws.ReadJSON(&query); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("script runner read: %w", err)
		}

		switch query.Query {
		case "exchange":
			var payload string
			if err := json.Unmarshal(query.Data, &payload); err != nil {
				return fmt.Errorf("decode exchange: %w", err)
			}
			reply := m.exchangeHex(h, payload)
			reply.Nonce = query.Nonce
			if err := ws.WriteJSON(reply); err != nil {
				return fmt.Errorf("script runner write: %w", err)
			}
		case "bulk":
			var payloads []string
			if err := json.Unmarshal(query.Data, &payloads); err != nil {
				return fmt.Errorf("decode bulk: %w", err)
			}
			reply := scriptReply{Response: "success"}
			for _, payload := range payloads {
				reply = m.exchangeHex(h, payload)
				if reply.Response != "success" {
					break
				}
			}
			reply.Nonce = query.Nonce
			if err := ws.WriteJSON(reply); err != nil {
				return fmt.Errorf("script runner write: %w", err)
			}
		case "success":
			m.log.Debug().Msg("Install script finished")
			return nil
		case "error":
			return fmt.Errorf("script runner: %s", dataText(query.Data))
		case "warning":
			m.log.Warn().Str("warning", dataText(query.Data)).Msg("Script runner warning")
		default:
			m.log.Warn().Str("query", query.Query).Msg("Received unknown script query")
		}
	}
}

func (m *Manager) exchangeHex(h ledger.Handle, payload string) scriptReply {
	cmd, err := hex.DecodeString(payload)
	if err != nil {
		return scriptReply{Response: "error", Data: err.Error()}
	}
	resp, err := h.Exchange(cmd)
	if err != nil {
		m.log.Debug().Err(err).Msg("Device rejected script APDU")
		return scriptReply{Response: "error", Data: err.Error()}
	}
	return scriptReply{Response: "success", Data: hex.EncodeToString(append(resp, statusOK...))}
}

// dataText renders a free-form data field, which the runner sends either as a
// string or as an object.
func dataText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 {
		return "no details"
	}
	return string(raw)
}
