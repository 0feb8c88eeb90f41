package ledger

import (
	"time"

	"github.com/beeper/ledger-installer/internal/metrics"
)

func (c *Client) connect() (Handle, bool) {
	h, ok := c.transport.Open()
	if !ok {
		c.log.Debug().Msg("No device found")
		return nil, false
	}
	return h, true
}

func (c *Client) closeHandle(h Handle) {
	if err := h.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close device handle")
	}
}

func (c *Client) resolveDeviceInfo(h Handle) (DeviceInfo, error) {
	defer metrics.ObserveDeviceQuery("device_info", time.Now())

	info, err := c.manager.DeviceInfo(h)
	if err != nil {
		return DeviceInfo{}, &DeviceQueryError{Cause: err}
	}
	return info, nil
}
