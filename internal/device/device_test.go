package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	ledger_go "github.com/zondax/ledger-go"

	"github.com/beeper/ledger-installer/internal/ledger"
)

// scriptedHandle answers APDUs by instruction byte, in order.
type scriptedHandle struct {
	responses map[byte][][]byte
	errs      map[byte]error
	sent      [][]byte
	closed    bool
}

func (h *scriptedHandle) Exchange(cmd []byte) ([]byte, error) {
	h.sent = append(h.sent, cmd)
	ins := cmd[1]
	if err := h.errs[ins]; err != nil {
		return nil, err
	}
	queue := h.responses[ins]
	if len(queue) == 0 {
		return nil, nil
	}
	h.responses[ins] = queue[1:]
	return queue[0], nil
}

func (h *scriptedHandle) Close() error {
	h.closed = true
	return nil
}

func versionResponse(target uint32, version string, flags []byte, mcu string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, target)
	buf.WriteByte(byte(len(version)))
	buf.WriteString(version)
	if flags != nil {
		buf.WriteByte(byte(len(flags)))
		buf.Write(flags)
		buf.WriteByte(byte(len(mcu)))
		buf.WriteString(mcu)
	}
	return buf.Bytes()
}

func appEntry(name string) []byte {
	var entry bytes.Buffer
	binary.Write(&entry, binary.BigEndian, uint16(12))
	binary.Write(&entry, binary.BigEndian, uint16(0x0a50))
	entry.Write(bytes.Repeat([]byte{0xaa}, appEntryHashBytes))
	entry.Write(bytes.Repeat([]byte{0xbb}, appEntryHashBytes))
	entry.WriteByte(byte(len(name)))
	entry.WriteString(name)
	return append([]byte{byte(entry.Len())}, entry.Bytes()...)
}

func appPage(names ...string) []byte {
	page := []byte{listAppsFormatV1}
	for _, name := range names {
		page = append(page, appEntry(name)...)
	}
	return page
}

func TestParseVersion(t *testing.T) {
	info, err := ParseVersion(versionResponse(0x31100004, "2.1.0", []byte{0xe6, 0, 0, 0}, "1.12\x00"))
	require.NoError(t, err)
	require.Equal(t, uint32(0x31100004), info.TargetID)
	require.Equal(t, "2.1.0", info.Version)
	require.Equal(t, "1.12", info.MCUVersion)
	require.Equal(t, []byte{0xe6, 0, 0, 0}, info.Flags)

	info, err = ParseVersion(versionResponse(0x33000004, "1.3.0", nil, ""))
	require.NoError(t, err)
	require.Equal(t, "1.3.0", info.Version)
	require.Empty(t, info.MCUVersion)

	_, err = ParseVersion([]byte{0x31, 0x10})
	require.ErrorIs(t, err, errShortResponse)

	_, err = ParseVersion([]byte{0x31, 0x10, 0x00, 0x04, 0x09, '2'})
	require.ErrorIs(t, err, errShortResponse)
}

func TestParseAppList(t *testing.T) {
	apps, err := ParseAppList(appPage("Bitcoin", "Bitcoin Test"))
	require.NoError(t, err)
	require.Len(t, apps, 2)
	require.Equal(t, "Bitcoin", apps[0].Name)
	require.Equal(t, "Bitcoin Test", apps[1].Name)
	require.Equal(t, uint16(12), apps[0].Blocks)
	require.Equal(t, uint16(0x0a50), apps[0].Flags)
	require.Len(t, apps[1].Hash, appEntryHashBytes)

	apps, err = ParseAppList(nil)
	require.NoError(t, err)
	require.Empty(t, apps)

	_, err = ParseAppList([]byte{0x02, 0x00})
	require.Error(t, err)

	page := appPage("Bitcoin")
	_, err = ParseAppList(page[:len(page)-3])
	require.ErrorIs(t, err, errShortResponse)
}

func TestInstalledAppsPages(t *testing.T) {
	h := &scriptedHandle{responses: map[byte][][]byte{
		insListAppsFirst: {appPage("Bitcoin")},
		insListAppsNext:  {appPage("Ethereum", "Bitcoin Test"), {}},
	}}
	m := NewManager(nil, "")

	names, err := m.InstalledApps(h)
	require.NoError(t, err)
	require.Equal(t, []string{"Bitcoin", "Ethereum", "Bitcoin Test"}, names)
	require.Equal(t, apdu(insListAppsFirst), h.sent[0])
	require.Equal(t, apdu(insListAppsNext), h.sent[1])
	require.Len(t, h.sent, 3)
}

func TestInstalledAppsRefused(t *testing.T) {
	h := &scriptedHandle{errs: map[byte]error{insListAppsFirst: errors.New("[APDU_CODE_CONDITIONS_NOT_SATISFIED] Conditions of use not satisfied")}}
	_, err := NewManager(nil, "").InstalledApps(h)
	require.ErrorContains(t, err, "Conditions of use not satisfied")
}

func TestDeviceInfo(t *testing.T) {
	h := &scriptedHandle{responses: map[byte][][]byte{
		insGetVersion: {versionResponse(0x31100004, "2.1.0", []byte{0}, "1.12")},
	}}
	info, err := NewManager(nil, "").DeviceInfo(h)
	require.NoError(t, err)
	require.Equal(t, "2.1.0", info.Version)
	require.Equal(t, apdu(insGetVersion), h.sent[0])
}

type staticCatalog map[ledger.AppSelector]*ledger.AppDescriptor

func (c staticCatalog) AppDescriptor(_ ledger.DeviceInfo, app ledger.AppSelector) (*ledger.AppDescriptor, error) {
	return c[app], nil
}

func scriptRunner(t *testing.T, script func(ws *websocket.Conn)) (*httptest.Server, chan string) {
	t.Helper()
	queries := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		script(ws)
	}))
	t.Cleanup(srv.Close)
	return srv, queries
}

func TestInstallAppRunsScript(t *testing.T) {
	replies := make(chan scriptReply, 2)
	srv, queries := scriptRunner(t, func(ws *websocket.Conn) {
		ws.WriteJSON(map[string]any{"nonce": 1, "query": "exchange", "data": "e050000008"})
		var reply scriptReply
		ws.ReadJSON(&reply)
		replies <- reply

		ws.WriteJSON(map[string]any{"nonce": 2, "query": "bulk", "data": []string{"e0f0000000", "e0f1000000"}})
		ws.ReadJSON(&reply)
		replies <- reply

		ws.WriteJSON(map[string]any{"nonce": 3, "query": "warning", "data": "slow down"})
		ws.WriteJSON(map[string]any{"nonce": 4, "query": "success", "data": map[string]any{}})
	})

	h := &scriptedHandle{responses: map[byte][][]byte{
		insGetVersion: {versionResponse(0x31100004, "2.1.0", []byte{0}, "1.12")},
		0x50:          {{0x01, 0x02}},
	}}
	catalog := staticCatalog{ledger.AppMain: {
		Firmware:    "nanos/2.1.0/bitcoin/app_2.2.1",
		FirmwareKey: "nanos/2.1.0/bitcoin/app_2.2.1_key",
		Hash:        "abcd",
		Perso:       "perso_11",
	}}
	m := NewManager(catalog, "ws"+strings.TrimPrefix(srv.URL, "http"))

	require.NoError(t, m.InstallApp(context.Background(), h, ledger.AppMain))

	query := <-queries
	require.Contains(t, query, "targetId=823132164")
	require.Contains(t, query, "perso=perso_11")
	require.Contains(t, query, "hash=abcd")

	require.Equal(t, scriptReply{Nonce: 1, Response: "success", Data: "01029000"}, <-replies)
	require.Equal(t, scriptReply{Nonce: 2, Response: "success", Data: "9000"}, <-replies)
	require.Len(t, h.sent, 4)
	require.Equal(t, "e0f1000000", hex.EncodeToString(h.sent[3]))
}

func TestInstallAppScriptError(t *testing.T) {
	srv, _ := scriptRunner(t, func(ws *websocket.Conn) {
		ws.WriteJSON(map[string]any{"nonce": 1, "query": "error", "data": "firmware not supported"})
	})

	h := &scriptedHandle{responses: map[byte][][]byte{
		insGetVersion: {versionResponse(0x31100004, "2.1.0", []byte{0}, "1.12")},
	}}
	catalog := staticCatalog{ledger.AppTest: {Firmware: "nanos/2.1.0/bitcoin_testnet/app_2.2.1"}}
	m := NewManager(catalog, "ws"+strings.TrimPrefix(srv.URL, "http"))

	err := m.InstallApp(context.Background(), h, ledger.AppTest)
	require.ErrorContains(t, err, "firmware not supported")
}

func TestInstallAppWithoutCatalogEntry(t *testing.T) {
	h := &scriptedHandle{responses: map[byte][][]byte{
		insGetVersion: {versionResponse(0x31100004, "2.1.0", []byte{0}, "1.12")},
	}}
	err := NewManager(staticCatalog{}, "ws://127.0.0.1:1").InstallApp(context.Background(), h, ledger.AppTest)
	require.ErrorContains(t, err, "no Bitcoin Test build available for firmware 2.1.0")
}

type fakeAdmin struct {
	count   int
	err     error
	handles int
}

func (a *fakeAdmin) CountDevices() int { return a.count }

func (a *fakeAdmin) ListDevices() ([]string, error) { return nil, nil }

func (a *fakeAdmin) Connect(int) (ledger_go.LedgerDevice, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.handles++
	return &scriptedHandle{}, nil
}

func TestHIDTransportOpen(t *testing.T) {
	admin := &fakeAdmin{}
	tr := NewHIDTransport()
	tr.newAdmin = func() ledger_go.LedgerAdmin { return admin }

	_, ok := tr.Open()
	require.False(t, ok)

	admin.count = 1
	admin.err = errors.New("device busy")
	_, ok = tr.Open()
	require.False(t, ok)

	admin.err = nil
	h, ok := tr.Open()
	require.True(t, ok)
	require.NotNil(t, h)
	require.Equal(t, 1, admin.handles)
}
