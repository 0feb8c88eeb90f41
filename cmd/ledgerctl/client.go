package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beeper/ledger-installer/internal/api"
)

type relayClient struct {
	base  string
	token string
	http  *http.Client
}

func newRelayClient(base, token string) *relayClient {
	return &relayClient{
		base:  strings.TrimSuffix(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *relayClient) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *relayClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header = c.header()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("relay returned %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("relay returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *relayClient) Status(ctx context.Context) (api.Status, error) {
	var status api.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/status", &status)
	return status, err
}

func (c *relayClient) Command(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/command/"+name, nil)
}

func (c *relayClient) ResetAlarm(ctx context.Context) (api.Status, error) {
	var status api.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/alarm/reset", &status)
	return status, err
}

// Events opens the event stream. The connection is closed when ctx is done.
func (c *relayClient) Events(ctx context.Context) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, c.header())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("relay unreachable: %w", err)
	}
	context.AfterFunc(ctx, func() { conn.Close() })
	return conn, nil
}
