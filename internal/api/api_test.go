package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/beeper/ledger-installer/internal/bridge"
	"github.com/beeper/ledger-installer/internal/config"
	"github.com/beeper/ledger-installer/internal/ledger"
)

type relay struct {
	srv  *httptest.Server
	core *bridge.Endpoint[ledger.Command, ledger.Event]
	hub  *Hub
}

func newRelay(t *testing.T, token string) *relay {
	t.Helper()
	core, consumer := bridge.NewPair[ledger.Event, ledger.Command]("test_" + t.Name())
	hub := NewHub(consumer)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cfg := config.Config{}
	cfg.API.Token = token
	srv := httptest.NewServer(NewAPI(cfg, hub).router())

	t.Cleanup(func() {
		srv.Close()
		cancel()
		core.Close()
	})
	return &relay{srv: srv, core: core, hub: hub}
}

func (r *relay) recvCommand(t *testing.T) ledger.Command {
	t.Helper()
	select {
	case cmd := <-r.core.Recv():
		return cmd
	case <-time.After(time.Second):
		t.Fatal("no command received")
	}
	return 0
}

func (r *relay) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope[json.RawMessage] {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var env Envelope[json.RawMessage]
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestStatusApply(t *testing.T) {
	var s Status
	require.Equal(t, disconnectedSummary, s.Summary())

	model, version := "Ledger", "2.1.0"
	s.Apply(ledger.Connected{Model: &model, DeviceVersion: &version})
	s.Apply(ledger.MainAppVersion{Version: ledger.Installed("2.2.1")})
	s.Apply(ledger.TestAppNextVersion{Version: ledger.Installed("2.3.0")})
	require.True(t, s.Connected())
	require.Equal(t, "Model: Ledger  Version: 2.1.0", s.Summary())

	s.Apply(ledger.DisplayMessage{Text: "device locked", Alarm: true})
	require.Equal(t, "device locked", s.Summary())
	s.ResetAlarm()
	require.Nil(t, s.Message)
	require.Equal(t, "Model: Ledger  Version: 2.1.0", s.Summary())

	s.Apply(ledger.Connected{})
	require.False(t, s.Connected())
	require.True(t, s.MainVersion.IsUnknown())
	require.True(t, s.TestNextVersion.IsUnknown())
	require.Equal(t, disconnectedSummary, s.Summary())
}

func TestPostCommand(t *testing.T) {
	r := newRelay(t, "")

	resp, err := http.Post(r.srv.URL+"/api/v1/command/install_test", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, ledger.CommandInstallTest, r.recvCommand(t))

	resp, err = http.Post(r.srv.URL+"/api/v1/command/format_device", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommandRequiresToken(t *testing.T) {
	r := newRelay(t, "s3cret")

	resp, err := http.Post(r.srv.URL+"/api/v1/command/try_connect", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, r.srv.URL+"/api/v1/command/try_connect", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, ledger.CommandTryConnect, r.recvCommand(t))

	// status is readable without a token
	resp, err = http.Get(r.srv.URL + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsWebsocket(t *testing.T) {
	r := newRelay(t, "s3cret")
	conn := r.dial(t, "/api/v1/events?token=s3cret")

	env := readEnvelope(t, conn)
	require.Equal(t, typeStatus, env.Type)

	version := "2.1.0"
	model := "Ledger"
	r.core.Send(ledger.Connected{Model: &model, DeviceVersion: &version})
	r.core.Send(ledger.MainAppVersion{Version: ledger.NotInstalled()})

	env = readEnvelope(t, conn)
	ev, ok, err := DecodeEvent(env.Type, env.Data)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ledger.Connected{Model: &model, DeviceVersion: &version}, ev)

	env = readEnvelope(t, conn)
	ev, ok, err = DecodeEvent(env.Type, env.Data)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ledger.MainAppVersion{Version: ledger.NotInstalled()}, ev)

	require.NoError(t, conn.WriteJSON(RawCommand[struct{}]{Command: "update_main", ReqID: 7}))
	env = readEnvelope(t, conn)
	require.Equal(t, typeResponse, env.Type)
	require.Equal(t, 7, env.ReqID)
	require.JSONEq(t, `{"ok":true}`, string(env.Data))
	require.Equal(t, ledger.CommandUpdateMain, r.recvCommand(t))

	require.NoError(t, conn.WriteJSON(RawCommand[struct{}]{Command: "erase", ReqID: 8}))
	env = readEnvelope(t, conn)
	require.Equal(t, 8, env.ReqID)
	require.Contains(t, string(env.Data), "unknown command")

	require.Equal(t, ledger.NotInstalled(), r.hub.Status().MainVersion)
}

func TestResetAlarmBroadcastsStatus(t *testing.T) {
	r := newRelay(t, "")
	conn := r.dial(t, "/api/v1/events")
	readEnvelope(t, conn)

	r.core.Send(ledger.DisplayMessage{Text: "device locked", Alarm: true})
	env := readEnvelope(t, conn)
	require.Equal(t, "display_message", env.Type)

	resp, err := http.Post(r.srv.URL+"/api/v1/alarm/reset", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.False(t, status.Alarm)

	env = readEnvelope(t, conn)
	require.Equal(t, typeStatus, env.Type)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	require.False(t, status.Alarm)
	require.Nil(t, status.Message)
}

func TestSlowSessionIsDropped(t *testing.T) {
	core, consumer := bridge.NewPair[ledger.Event, ledger.Command]("test_slow")
	defer core.Close()
	hub := NewHub(consumer)

	s, err := hub.subscribe()
	require.NoError(t, err)
	for i := 0; i < sessionBuffer; i++ {
		hub.dispatch(ledger.DisplayMessage{Text: "tick"})
	}

	hub.lock.Lock()
	_, ok := hub.sessions[s]
	hub.lock.Unlock()
	require.False(t, ok)

	// drain: the channel must be closed after the buffered messages
	n := 0
	for range s.send {
		n++
	}
	require.Equal(t, sessionBuffer, n)
}
