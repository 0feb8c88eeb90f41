package ledger

import (
	"strings"
	"time"

	"github.com/beeper/ledger-installer/internal/metrics"
)

const confirmManagerText = "Please confirm the manager access on your device..."

// InstalledApps records which of the two applications the device reported.
type InstalledApps struct {
	Main bool
	Test bool
}

func (a InstalledApps) Has(app AppSelector) bool {
	if app == AppTest {
		return a.Test
	}
	return a.Main
}

// PresenceOf matches the device's app names exactly against the catalog
// labels. The two flags are independent.
func PresenceOf(names []string) InstalledApps {
	var apps InstalledApps
	for _, name := range names {
		switch name {
		case mainAppLabel:
			apps.Main = true
		case testAppLabel:
			apps.Test = true
		}
	}
	return apps
}

func (c *Client) enumerateApps(h Handle) (InstalledApps, error) {
	c.emit(DisplayMessage{Text: confirmManagerText})

	defer metrics.ObserveDeviceQuery("installed_apps", time.Now())

	names, err := c.manager.InstalledApps(h)
	if err != nil {
		return InstalledApps{}, &AppEnumerationError{Cause: err}
	}
	c.log.Debug().Str("apps", strings.Join(names, ", ")).Msg("Installed apps")
	return PresenceOf(names), nil
}
