package config

import "time"

type Config struct {
	Version      string
	PollInterval time.Duration

	API struct {
		Listen string
		// Token guards the command routes when set.
		Token string
	}

	Catalog struct {
		// File, when set, replaces the manager API with a static YAML catalog.
		File       string
		ManagerURL string
		CacheTTL   time.Duration
	}

	ScriptRunnerURL string

	Analytics struct {
		URL   string
		Token string
	}
}
