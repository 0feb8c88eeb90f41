package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/beeper/ledger-installer/internal/metrics"
)

var ErrNoDevice = errors.New("no device connected")

// install runs an install (or update, which is the same overwrite) and then
// forces a full rediscovery.
func (c *Client) install(ctx context.Context, app AppSelector) {
	c.log.Info().Stringer("app", app).Msg("Install requested")

	c.cs.main, c.cs.test = Unknown(), Unknown()
	c.emit(MainAppVersion{Version: Unknown()})
	c.emit(TestAppVersion{Version: Unknown()})

	err := c.runInstall(ctx, app)
	result := "success"
	if err != nil {
		result = "failure"
		c.log.Err(err).Stringer("app", app).Msg("Install failed")
	}
	metrics.Installs.WithLabelValues(app.String(), result).Inc()
	if c.onInstall != nil {
		c.onInstall(app, err)
	}

	c.cs.lastDeviceVersion = nil
	c.poll()
}

func (c *Client) runInstall(ctx context.Context, app AppSelector) error {
	h, ok := c.connect()
	if !ok {
		c.alarm(ErrNoDevice)
		return ErrNoDevice
	}
	defer c.closeHandle(h)

	c.emit(DisplayMessage{Text: fmt.Sprintf("Installing %s app, please confirm on your device...", app.Label())})
	if err := c.manager.InstallApp(ctx, h, app); err != nil {
		err = fmt.Errorf("failed to install %s app: %w", app.Label(), err)
		c.alarm(err)
		return err
	}

	c.log.Info().Stringer("app", app).Msg("App installed")
	c.emit(DisplayMessage{Text: fmt.Sprintf("%s app installed", app.Label())})
	return nil
}
