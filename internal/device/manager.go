package device

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/ledger-installer/internal/ledger"
)

const DefaultScriptRunnerURL = "wss://scriptrunner.api.live.ledger.com"

// maxAppPages bounds the LIST_APPS paging in case a device never returns an
// empty page.
const maxAppPages = 64

type Manager struct {
	log             zerolog.Logger
	catalog         ledger.Catalog
	scriptRunnerURL string
	dialer          *websocket.Dialer
}

func NewManager(catalog ledger.Catalog, scriptRunnerURL string) *Manager {
	logger := log.With().
		Str("component", "manager").
		Logger()

	if scriptRunnerURL == "" {
		scriptRunnerURL = DefaultScriptRunnerURL
	}

	return &Manager{
		log:             logger,
		catalog:         catalog,
		scriptRunnerURL: scriptRunnerURL,
		dialer:          websocket.DefaultDialer,
	}
}

func (m *Manager) DeviceInfo(h ledger.Handle) (ledger.DeviceInfo, error) {
	resp, err := h.Exchange(apdu(insGetVersion))
	if err != nil {
		return ledger.DeviceInfo{}, fmt.Errorf("get version: %w", err)
	}
	return ParseVersion(resp)
}

// InstalledApps lists the app names. The device asks the user to allow
// manager access before answering the first page.
func (m *Manager) InstalledApps(h ledger.Handle) ([]string, error) {
	var names []string
	ins := byte(insListAppsFirst)
	for page := 0; page < maxAppPages; page++ {
		resp, err := h.Exchange(apdu(ins))
		if err != nil {
			return nil, fmt.Errorf("list apps: %w", err)
		}
		apps, err := ParseAppList(resp)
		if err != nil {
			return nil, err
		}
		if len(apps) == 0 {
			return names, nil
		}
		for _, app := range apps {
			names = append(names, app.Name)
		}
		ins = insListAppsNext
	}
	return nil, fmt.Errorf("list apps: no end after %d pages", maxAppPages)
}

// InstallApp installs (or reinstalls over) the catalog's build of app for the
// connected firmware.
func (m *Manager) InstallApp(ctx context.Context, h ledger.Handle, app ledger.AppSelector) error {
	info, err := m.DeviceInfo(h)
	if err != nil {
		return err
	}

	desc, err := m.catalog.AppDescriptor(info, app)
	if err != nil {
		return fmt.Errorf("catalog lookup: %w", err)
	}
	if desc == nil {
		return fmt.Errorf("no %s build available for firmware %s", app.Label(), info.Version)
	}

	m.log.Info().
		Str("app", app.Label()).
		Str("firmware", desc.Firmware).
		Msg("Running install script")

	return m.runScript(ctx, h, installURL(m.scriptRunnerURL, info, desc))
}
