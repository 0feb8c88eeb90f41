package ledger

import (
	"context"
	"errors"
	"sync"
)

type recordingEndpoint struct {
	mu       sync.Mutex
	events   []Event
	commands chan Command
}

func newRecordingEndpoint() *recordingEndpoint {
	return &recordingEndpoint{commands: make(chan Command, 64)}
}

func (e *recordingEndpoint) Recv() <-chan Command { return e.commands }

func (e *recordingEndpoint) Send(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEndpoint) Loopback(cmd Command) {
	select {
	case e.commands <- cmd:
	default:
	}
}

// take returns and clears the recorded events.
func (e *recordingEndpoint) take() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}

type fakeHandle struct {
	closed bool
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func (h *fakeHandle) Exchange([]byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type fakeDevice struct {
	present bool
	opened  []*fakeHandle

	info    DeviceInfo
	infoErr error

	apps    []string
	appsErr error

	installErr error
	installed  []AppSelector
	calls      []string
}

func (d *fakeDevice) Open() (Handle, bool) {
	d.calls = append(d.calls, "open")
	if !d.present {
		return nil, false
	}
	h := &fakeHandle{}
	d.opened = append(d.opened, h)
	return h, true
}

func (d *fakeDevice) DeviceInfo(Handle) (DeviceInfo, error) {
	d.calls = append(d.calls, "device_info")
	return d.info, d.infoErr
}

func (d *fakeDevice) InstalledApps(Handle) ([]string, error) {
	d.calls = append(d.calls, "installed_apps")
	return d.apps, d.appsErr
}

func (d *fakeDevice) InstallApp(_ context.Context, _ Handle, app AppSelector) error {
	d.calls = append(d.calls, "install")
	if d.installErr != nil {
		return d.installErr
	}
	d.installed = append(d.installed, app)
	return nil
}

func (d *fakeDevice) allClosed() bool {
	for _, h := range d.opened {
		if !h.closed {
			return false
		}
	}
	return true
}

type fakeCatalog struct {
	entries map[AppSelector]*AppDescriptor
	err     error
	lookups []AppSelector
}

func (c *fakeCatalog) AppDescriptor(_ DeviceInfo, app AppSelector) (*AppDescriptor, error) {
	c.lookups = append(c.lookups, app)
	if c.err != nil {
		return nil, c.err
	}
	return c.entries[app], nil
}

func newTestClient(dev *fakeDevice, cat *fakeCatalog) (*Client, *recordingEndpoint) {
	ep := newRecordingEndpoint()
	return NewClient(ep, dev, dev, cat), ep
}

func connectedDevice() (*fakeDevice, *fakeCatalog) {
	dev := &fakeDevice{
		present: true,
		info:    DeviceInfo{TargetID: 0x31100004, Version: "2.1.0"},
		apps:    []string{"Bitcoin", "Bitcoin Test"},
	}
	cat := &fakeCatalog{entries: map[AppSelector]*AppDescriptor{
		AppMain: {Name: "Bitcoin", Firmware: "nanos/2.1.0/bitcoin/app_2.2.1"},
		AppTest: {Name: "Bitcoin Test", Firmware: "nanos/2.1.0/bitcoin_testnet/app_2.2.1"},
	}}
	return dev, cat
}
