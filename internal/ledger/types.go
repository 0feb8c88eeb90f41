package ledger

import (
	"encoding/json"
	"fmt"
)

type versionState uint8

const (
	versionUnknown versionState = iota
	versionNotInstalled
	versionInstalled
)

// Version is the resolved state of one application slot. The zero value is
// Unknown, meaning "not determined yet", which is distinct from NotInstalled.
type Version struct {
	state versionState
	label string
}

func Installed(label string) Version {
	return Version{state: versionInstalled, label: label}
}

func NotInstalled() Version {
	return Version{state: versionNotInstalled}
}

func Unknown() Version {
	return Version{}
}

// Label returns the installed version label, if any.
func (v Version) Label() (string, bool) {
	return v.label, v.state == versionInstalled
}

func (v Version) IsUnknown() bool {
	return v.state == versionUnknown
}

func (v Version) IsInstalled() bool {
	return v.state == versionInstalled
}

func (v Version) String() string {
	switch v.state {
	case versionInstalled:
		return v.label
	case versionNotInstalled:
		return "not installed"
	default:
		return ""
	}
}

type versionJSON struct {
	State string `json:"state"`
	Label string `json:"label,omitempty"`
}

func (v Version) MarshalJSON() ([]byte, error) {
	out := versionJSON{State: "unknown"}
	switch v.state {
	case versionInstalled:
		out.State = "installed"
		out.Label = v.label
	case versionNotInstalled:
		out.State = "not_installed"
	}
	return json.Marshal(out)
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var in versionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.State {
	case "installed":
		*v = Installed(in.Label)
	case "not_installed":
		*v = NotInstalled()
	case "unknown", "":
		*v = Unknown()
	default:
		return fmt.Errorf("unknown version state %q", in.State)
	}
	return nil
}

// Model is the hardware variant of the connected device. Display only.
type Model uint8

const (
	ModelUnknown Model = iota
	ModelNanoS
	ModelNanoSP
	ModelNanoX
)

// ParseModel maps the first segment of a firmware path to a Model.
func ParseModel(segment string) Model {
	switch segment {
	case "nanos":
		return ModelNanoS
	case "nanos+":
		return ModelNanoSP
	case "nanox":
		return ModelNanoX
	default:
		return ModelUnknown
	}
}

func (m Model) String() string {
	switch m {
	case ModelNanoS:
		return "Nano S"
	case ModelNanoSP:
		return "Nano S Plus"
	case ModelNanoX:
		return "Nano X"
	default:
		return "Unknown"
	}
}

// DeviceInfo is a snapshot of the device identity, fetched fresh on every
// successful query.
type DeviceInfo struct {
	TargetID   uint32
	Version    string
	MCUVersion string
	Flags      []byte
}

// AppDescriptor is a catalog entry for one installable application.
type AppDescriptor struct {
	Name        string `json:"name" yaml:"name"`
	Firmware    string `json:"firmware" yaml:"firmware"`
	FirmwareKey string `json:"firmware_key" yaml:"firmware_key"`
	Hash        string `json:"hash" yaml:"hash"`
	Perso       string `json:"perso" yaml:"perso"`
	Delete      string `json:"delete,omitempty" yaml:"delete,omitempty"`
	DeleteKey   string `json:"delete_key,omitempty" yaml:"delete_key,omitempty"`
}

type AppSelector uint8

const (
	AppMain AppSelector = iota
	AppTest
)

const (
	mainAppLabel = "Bitcoin"
	testAppLabel = "Bitcoin Test"
)

// Label is the exact application name the device and the catalog use.
func (s AppSelector) Label() string {
	if s == AppTest {
		return testAppLabel
	}
	return mainAppLabel
}

func (s AppSelector) String() string {
	if s == AppTest {
		return "test"
	}
	return "main"
}
