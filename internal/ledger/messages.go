package ledger

import "fmt"

// Command is a consumer request to the client.
type Command uint8

const (
	CommandTryConnect Command = iota
	CommandInstallMain
	CommandUpdateMain
	CommandInstallTest
	CommandUpdateTest
)

var commandNames = map[Command]string{
	CommandTryConnect:  "try_connect",
	CommandInstallMain: "install_main",
	CommandUpdateMain:  "update_main",
	CommandInstallTest: "install_test",
	CommandUpdateTest:  "update_test",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

func ParseCommand(name string) (Command, error) {
	for cmd, n := range commandNames {
		if n == name {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Event is a state change reported by the client. The set of variants is
// closed; switch on the concrete type.
type Event interface {
	isEvent()
}

type Connected struct {
	Model         *string `json:"model"`
	DeviceVersion *string `json:"device_version"`
}

type MainAppVersion struct {
	Version Version `json:"version"`
}

type MainAppNextVersion struct {
	Version Version `json:"version"`
}

type TestAppVersion struct {
	Version Version `json:"version"`
}

type TestAppNextVersion struct {
	Version Version `json:"version"`
}

type DisplayMessage struct {
	Text  string `json:"text"`
	Alarm bool   `json:"alarm"`
}

func (Connected) isEvent()          {}
func (MainAppVersion) isEvent()     {}
func (MainAppNextVersion) isEvent() {}
func (TestAppVersion) isEvent()     {}
func (TestAppNextVersion) isEvent() {}
func (DisplayMessage) isEvent()     {}

// EventType returns the wire name of an event.
func EventType(ev Event) string {
	switch ev.(type) {
	case Connected:
		return "connected"
	case MainAppVersion:
		return "main_app_version"
	case MainAppNextVersion:
		return "main_app_next_version"
	case TestAppVersion:
		return "test_app_version"
	case TestAppNextVersion:
		return "test_app_next_version"
	case DisplayMessage:
		return "display_message"
	default:
		return "unknown"
	}
}
