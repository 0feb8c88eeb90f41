// Package ledger implements the device client: a sequential state machine
// that polls the attached device, works out which of the Bitcoin apps are
// installed and at which version, runs installs, and reports every change as
// an Event to its consumer.
package ledger

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/ledger-installer/internal/metrics"
)

const (
	DefaultPollInterval = 5 * time.Second

	deviceBrand = "Ledger"
)

type State uint32

const (
	StateDisconnected State = iota
	StateQuerying
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateQuerying:
		return "querying"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Endpoint is the client's side of the messaging bridge.
type Endpoint interface {
	Recv() <-chan Command
	Send(ev Event)
	Loopback(cmd Command)
}

// clientState is owned by the goroutine running Client.Run.
type clientState struct {
	lastDeviceVersion *string
	main              Version
	test              Version
}

type Client struct {
	log       zerolog.Logger
	endpoint  Endpoint
	transport Transport
	manager   Manager
	catalog   Catalog

	pollInterval time.Duration
	onInstall    func(app AppSelector, err error)

	state atomic.Uint32
	cs    clientState
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithInstallObserver registers fn to be called after every install attempt.
func WithInstallObserver(fn func(app AppSelector, err error)) Option {
	return func(c *Client) {
		c.onInstall = fn
	}
}

func NewClient(endpoint Endpoint, transport Transport, manager Manager, catalog Catalog, opts ...Option) *Client {
	logger := log.With().
		Str("component", "client").
		Logger()

	c := &Client{
		log:          logger,
		endpoint:     endpoint,
		transport:    transport,
		manager:      manager,
		catalog:      catalog,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if old := State(c.state.Swap(uint32(s))); old != s {
		c.log.Debug().Stringer("from", old).Stringer("to", s).Msg("State changed")
	}
}

// Run processes commands until ctx is done or the bridge is closed. It polls
// right away and then every poll interval.
func (c *Client) Run(ctx context.Context) {
	c.log.Info().Dur("poll_interval", c.pollInterval).Msg("Starting device client")

	c.endpoint.Loopback(CommandTryConnect)
	go c.pollTimer(ctx)

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Device client stopped")
			return
		case cmd, ok := <-c.endpoint.Recv():
			if !ok {
				c.log.Info().Msg("Command queue closed, stopping device client")
				return
			}
			c.handle(ctx, cmd)
		}
	}
}

func (c *Client) pollTimer(ctx context.Context) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.endpoint.Loopback(CommandTryConnect)
			timer.Reset(c.pollInterval)
		}
	}
}

func (c *Client) handle(ctx context.Context, cmd Command) {
	c.log.Debug().Stringer("command", cmd).Msg("Handling command")

	switch cmd {
	case CommandTryConnect:
		c.poll()
	case CommandInstallMain, CommandUpdateMain:
		c.install(ctx, AppMain)
	case CommandInstallTest, CommandUpdateTest:
		c.install(ctx, AppTest)
	default:
		c.log.Warn().Stringer("command", cmd).Msg("Received unknown command")
	}
}

func (c *Client) emit(ev Event) {
	c.log.Trace().Str("event", EventType(ev)).Interface("data", ev).Msg("Emitting event")
	c.endpoint.Send(ev)
}

func (c *Client) alarm(err error) {
	c.emit(DisplayMessage{Text: err.Error(), Alarm: true})
}

// poll runs one cycle. Discovery only happens on the first successful
// identification after a disconnect (or when the firmware version changed);
// later cycles just confirm the device is still there.
func (c *Client) poll() {
	h, ok := c.connect()
	if !ok {
		c.disconnected()
		metrics.PollTicks.WithLabelValues("absent").Inc()
		return
	}
	defer c.closeHandle(h)

	info, err := c.resolveDeviceInfo(h)
	if err != nil {
		c.log.Warn().Err(err).Msg("Device query failed")
		c.alarm(err)
		metrics.PollTicks.WithLabelValues("device_error").Inc()
		return
	}

	if last := c.cs.lastDeviceVersion; last != nil && *last == info.Version {
		metrics.PollTicks.WithLabelValues("unchanged").Inc()
		return
	}

	c.log.Info().
		Str("version", info.Version).
		Uint32("target_id", info.TargetID).
		Msg("Device identified")
	c.setState(StateQuerying)
	c.emit(Connected{Model: ptr(deviceBrand), DeviceVersion: ptr(info.Version)})

	c.discover(h, info)
}

func (c *Client) discover(h Handle, info DeviceInfo) {
	apps, err := c.enumerateApps(h)
	if err != nil {
		c.log.Warn().Err(err).Msg("App enumeration failed")
		c.alarm(err)
		metrics.PollTicks.WithLabelValues("enumeration_error").Inc()
		return
	}

	mainModel, main := c.appVersion(info, apps, AppMain)
	testModel, test := c.appVersion(info, apps, AppTest)
	c.cs.main, c.cs.test = main, test

	model := mainModel
	if model == ModelUnknown {
		model = testModel
	}
	if model != ModelUnknown {
		c.emit(Connected{Model: ptr(model.String()), DeviceVersion: ptr(info.Version)})
	}

	if !main.IsUnknown() {
		c.emit(MainAppVersion{Version: main})
	}
	if !test.IsUnknown() {
		c.emit(TestAppVersion{Version: test})
	}

	c.cs.lastDeviceVersion = ptr(info.Version)
	c.setState(StateConnected)
	metrics.DeviceConnected.Set(1)
	metrics.PollTicks.WithLabelValues("discovered").Inc()

	c.log.Info().
		Stringer("model", model).
		Stringer("main", main).
		Stringer("test", test).
		Msg("Discovery complete")
}

func (c *Client) appVersion(info DeviceInfo, apps InstalledApps, app AppSelector) (Model, Version) {
	if !apps.Has(app) {
		return ModelUnknown, NotInstalled()
	}
	model, version, err := c.resolveAppVersion(info, app)
	if err != nil {
		c.log.Warn().Err(err).Stringer("app", app).Msg("Failed to resolve app version")
		c.emit(DisplayMessage{Text: err.Error()})
		return ModelUnknown, Unknown()
	}
	return model, version
}

func (c *Client) disconnected() {
	if c.State() != StateDisconnected {
		c.log.Info().Msg("Device disconnected")
	}
	c.cs = clientState{}
	c.setState(StateDisconnected)
	metrics.DeviceConnected.Set(0)
	c.emit(Connected{})
}

func ptr[T any](v T) *T {
	return &v
}
