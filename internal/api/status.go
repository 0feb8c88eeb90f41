package api

import (
	"fmt"

	"github.com/beeper/ledger-installer/internal/ledger"
)

const disconnectedSummary = "Please connect a device and unlock it..."

// Status is what a consumer knows about the device, built only from the
// events the client has sent.
type Status struct {
	Model           *string        `json:"model"`
	DeviceVersion   *string        `json:"device_version"`
	MainVersion     ledger.Version `json:"main_version"`
	MainNextVersion ledger.Version `json:"main_next_version"`
	TestVersion     ledger.Version `json:"test_version"`
	TestNextVersion ledger.Version `json:"test_next_version"`
	Message         *string        `json:"message,omitempty"`
	Alarm           bool           `json:"alarm"`
}

func (s *Status) Apply(ev ledger.Event) {
	switch ev := ev.(type) {
	case ledger.Connected:
		if ev.Model == nil {
			s.MainVersion = ledger.Unknown()
			s.MainNextVersion = ledger.Unknown()
			s.TestVersion = ledger.Unknown()
			s.TestNextVersion = ledger.Unknown()
		}
		s.Model = ev.Model
		s.DeviceVersion = ev.DeviceVersion
	case ledger.MainAppVersion:
		s.MainVersion = ev.Version
	case ledger.MainAppNextVersion:
		s.MainNextVersion = ev.Version
	case ledger.TestAppVersion:
		s.TestVersion = ev.Version
	case ledger.TestAppNextVersion:
		s.TestNextVersion = ev.Version
	case ledger.DisplayMessage:
		text := ev.Text
		s.Message = &text
		s.Alarm = ev.Alarm
	}
}

// ResetAlarm acknowledges the current message.
func (s *Status) ResetAlarm() {
	s.Alarm = false
	s.Message = nil
}

func (s Status) Connected() bool {
	return s.Model != nil
}

// Summary is the one-line device description. An unacknowledged alarm takes
// precedence over everything else.
func (s Status) Summary() string {
	switch {
	case s.Alarm && s.Message != nil:
		return *s.Message
	case s.Model != nil && s.DeviceVersion == nil:
		return fmt.Sprintf("Model: %s  Version: unknown", *s.Model)
	case s.Model != nil:
		return fmt.Sprintf("Model: %s  Version: %s", *s.Model, *s.DeviceVersion)
	default:
		return disconnectedSummary
	}
}
