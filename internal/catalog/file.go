package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/beeper/ledger-installer/internal/ledger"
)

// FileEntry is one app build in a catalog file. A zero TargetID matches any
// device running FirmwareVersion.
type FileEntry struct {
	TargetID             uint32 `yaml:"target_id"`
	FirmwareVersion      string `yaml:"firmware_version"`
	ledger.AppDescriptor `yaml:",inline"`
}

type fileContents struct {
	Apps []FileEntry `yaml:"apps"`
}

// FileCatalog serves descriptors from a static YAML file, for offline use.
type FileCatalog struct {
	entries []FileEntry
}

func LoadFileCatalog(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFileCatalog(data)
}

func ParseFileCatalog(data []byte) (*FileCatalog, error) {
	var contents fileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, e := range contents.Apps {
		if e.Name == "" || e.Firmware == "" || e.FirmwareVersion == "" {
			return nil, fmt.Errorf("catalog entry %d: name, firmware and firmware_version are required", i)
		}
	}
	return &FileCatalog{entries: contents.Apps}, nil
}

func (c *FileCatalog) AppDescriptor(info ledger.DeviceInfo, app ledger.AppSelector) (*ledger.AppDescriptor, error) {
	var fallback *ledger.AppDescriptor
	for i := range c.entries {
		e := &c.entries[i]
		if e.Name != app.Label() || e.FirmwareVersion != info.Version {
			continue
		}
		if e.TargetID == info.TargetID {
			desc := e.AppDescriptor
			return &desc, nil
		}
		if e.TargetID == 0 && fallback == nil {
			desc := e.AppDescriptor
			fallback = &desc
		}
	}
	return fallback, nil
}
