// Package catalog looks up which build of an application fits a device's
// firmware.
package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/ledger-installer/internal/ledger"
)

const (
	DefaultManagerURL = "https://manager.api.live.ledger.com"
	DefaultCacheTTL   = 10 * time.Minute
)

type managerApp struct {
	VersionName string `json:"versionName"`
	Version     string `json:"version"`
	Firmware    string `json:"firmware"`
	FirmwareKey string `json:"firmware_key"`
	Hash        string `json:"hash"`
	Perso       string `json:"perso"`
	Delete      string `json:"delete"`
	DeleteKey   string `json:"delete_key"`
}

type cacheKey struct {
	targetID uint32
	firmware string
}

type cacheEntry struct {
	apps    []managerApp
	fetched time.Time
}

// HTTPCatalog queries the Ledger manager API and caches the app list per
// target and firmware version.
type HTTPCatalog struct {
	log     zerolog.Logger
	baseURL string
	client  *http.Client
	ttl     time.Duration

	lock  sync.Mutex
	cache map[cacheKey]cacheEntry
}

func NewHTTPCatalog(baseURL string, ttl time.Duration) *HTTPCatalog {
	logger := log.With().
		Str("component", "catalog").
		Logger()

	if baseURL == "" {
		baseURL = DefaultManagerURL
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &HTTPCatalog{
		log:     logger,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		ttl:     ttl,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

func (c *HTTPCatalog) AppDescriptor(info ledger.DeviceInfo, app ledger.AppSelector) (*ledger.AppDescriptor, error) {
	apps, err := c.apps(info)
	if err != nil {
		return nil, err
	}
	for _, a := range apps {
		if a.VersionName == app.Label() {
			return &ledger.AppDescriptor{
				Name:        a.VersionName,
				Firmware:    a.Firmware,
				FirmwareKey: a.FirmwareKey,
				Hash:        a.Hash,
				Perso:       a.Perso,
				Delete:      a.Delete,
				DeleteKey:   a.DeleteKey,
			}, nil
		}
	}
	return nil, nil
}

func (c *HTTPCatalog) apps(info ledger.DeviceInfo) ([]managerApp, error) {
	key := cacheKey{targetID: info.TargetID, firmware: info.Version}

	c.lock.Lock()
	defer c.lock.Unlock()

	if entry, ok := c.cache[key]; ok && time.Since(entry.fetched) < c.ttl {
		return entry.apps, nil
	}

	apps, err := c.fetch(key)
	if err != nil {
		return nil, err
	}
	c.cache[key] = cacheEntry{apps: apps, fetched: time.Now()}
	return apps, nil
}

func (c *HTTPCatalog) fetch(key cacheKey) ([]managerApp, error) {
	q := url.Values{}
	q.Set("target_id", strconv.FormatUint(uint64(key.targetID), 10))
	q.Set("firmware_version_name", key.firmware)
	q.Set("provider", "1")

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/v2/apps/by-target?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog request: unexpected status %d", resp.StatusCode)
	}

	var apps []managerApp
	if err := json.NewDecoder(resp.Body).Decode(&apps); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c.log.Debug().
		Uint32("target_id", key.targetID).
		Str("firmware", key.firmware).
		Int("apps", len(apps)).
		Msg("Fetched app catalog")
	return apps, nil
}
