// Package device talks to a Ledger over USB HID: it opens the device,
// encodes the dashboard APDUs the client needs, and runs the install scripts
// served by Ledger's script runner.
package device

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	ledger_go "github.com/zondax/ledger-go"

	"github.com/beeper/ledger-installer/internal/ledger"
)

type HIDTransport struct {
	log      zerolog.Logger
	newAdmin func() ledger_go.LedgerAdmin
}

func NewHIDTransport() *HIDTransport {
	logger := log.With().
		Str("component", "hid").
		Logger()

	return &HIDTransport{
		log: logger,
		newAdmin: func() ledger_go.LedgerAdmin {
			return ledger_go.NewLedgerAdmin()
		},
	}
}

// Open connects to the first attached device. Nothing is held open when it
// reports false.
func (t *HIDTransport) Open() (ledger.Handle, bool) {
	admin := t.newAdmin()
	if admin.CountDevices() == 0 {
		return nil, false
	}

	dev, err := admin.Connect(0)
	if err != nil {
		t.log.Debug().Err(err).Msg("Failed to open device")
		return nil, false
	}
	return dev, true
}
