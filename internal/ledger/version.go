package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var errNoFirmware = errors.New("no firmware description")

// ParseFirmwarePath decodes a catalog path such as
// "nanos/2.1.0/bitcoin_testnet/app_2.2.1": the first segment names the model
// and the last one the app version.
func ParseFirmwarePath(path string) (Model, Version, error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || segments[0] == "" || segments[len(segments)-1] == "" {
		return ModelUnknown, Unknown(), &VersionParseError{Path: path}
	}

	model := ParseModel(segments[0])
	label := strings.TrimPrefix(segments[len(segments)-1], "app_")
	return model, Installed(label), nil
}

func (c *Client) resolveAppVersion(info DeviceInfo, app AppSelector) (Model, Version, error) {
	desc, err := c.catalog.AppDescriptor(info, app)
	if err != nil {
		return ModelUnknown, Unknown(), &VersionParseError{Cause: fmt.Errorf("%s: %w", app.Label(), err)}
	}
	if desc == nil {
		return ModelUnknown, Unknown(), &VersionParseError{Cause: fmt.Errorf("%s: %w", app.Label(), errNoFirmware)}
	}
	return ParseFirmwarePath(desc.Firmware)
}
