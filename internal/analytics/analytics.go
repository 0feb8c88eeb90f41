// Package analytics optionally reports install outcomes to a tracking
// endpoint. It is disabled unless a token is configured.
package analytics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/ledger-installer/internal/ledger"
)

type Tracker struct {
	log       zerolog.Logger
	url       string
	token     string
	installID string
	client    *http.Client
}

// NewTracker returns a tracker. installID is generated once per process so
// events from one run can be grouped without identifying the device.
func NewTracker(url, token string) *Tracker {
	return &Tracker{
		log:       log.With().Str("component", "analytics").Logger(),
		url:       url,
		token:     token,
		installID: uuid.NewString(),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Tracker) IsEnabled() bool {
	return t != nil && t.url != "" && len(t.token) > 0
}

func (t *Tracker) send(event string, properties map[string]any) {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(map[string]any{
		"userId":     t.installID,
		"event":      event,
		"properties": properties,
	})
	if err != nil {
		t.log.Error().Err(err).Msg("error encoding payload")
		return
	}

	req, err := http.NewRequest(http.MethodPost, t.url, &buf)
	if err != nil {
		t.log.Error().Err(err).Msg("error creating request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(t.token, "")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Error().Err(err).Msg("error sending request")
		return
	}
	if err := resp.Body.Close(); err != nil {
		t.log.Error().Err(err).Msg("error closing request")
	}

	t.log.Debug().Str("event", event).Int("status", resp.StatusCode).Msg("Tracked event")
}

// Track sends the event in the background.
func (t *Tracker) Track(event string, properties map[string]any) {
	if !t.IsEnabled() {
		return
	}
	go t.send(event, properties)
}

// TrackInstall reports the outcome of an app install. Only the app and the
// result are sent.
func (t *Tracker) TrackInstall(app ledger.AppSelector, err error) {
	properties := map[string]any{
		"app":     app.Label(),
		"success": err == nil,
	}
	if err != nil {
		properties["error"] = err.Error()
	}
	t.Track("App Installed", properties)
}
