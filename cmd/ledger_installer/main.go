package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/libserv/pkg/flagenv"

	"github.com/beeper/ledger-installer/internal/analytics"
	"github.com/beeper/ledger-installer/internal/api"
	"github.com/beeper/ledger-installer/internal/bridge"
	"github.com/beeper/ledger-installer/internal/catalog"
	"github.com/beeper/ledger-installer/internal/config"
	"github.com/beeper/ledger-installer/internal/device"
	"github.com/beeper/ledger-installer/internal/ledger"
	"github.com/beeper/ledger-installer/internal/metrics"
)

var Commit,
	BuildTime string

func durationFlag(name, env string, def time.Duration, usage string) *time.Duration {
	d, err := time.ParseDuration(flagenv.StringEnvWithDefault(env, def.String()))
	if err != nil {
		log.Fatal().Err(err).Str("env", env).Msg("Invalid duration")
	}
	return flag.Duration(name, d, usage)
}

func main() {
	prettyLogs := flag.Bool("prettyLogs", false, "Display pretty logs")
	debug := flag.Bool("debug", false, "Enable debug logging")
	trace := flag.Bool("trace", false, "Log every event sent to consumers")

	listenAddr := flag.String(
		"listen",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_LISTEN", "127.0.0.1:8000"),
		"Listen address",
	)
	metricsListenAddr := flag.String(
		"metricsListen",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_METRICS_LISTEN", "127.0.0.1:5000"),
		"Metrics listen address",
	)
	token := flag.String(
		"token",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_TOKEN", ""),
		"Bearer token required for commands (empty disables auth)",
	)
	pollInterval := durationFlag(
		"pollInterval", "LEDGER_INSTALLER_POLL_INTERVAL", ledger.DefaultPollInterval,
		"Device poll interval",
	)
	catalogFile := flag.String(
		"catalogFile",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_CATALOG_FILE", ""),
		"Static YAML app catalog, replaces the manager API",
	)
	managerURL := flag.String(
		"managerURL",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_MANAGER_URL", catalog.DefaultManagerURL),
		"Manager API base URL",
	)
	cacheTTL := durationFlag(
		"catalogCacheTTL", "LEDGER_INSTALLER_CATALOG_CACHE_TTL", catalog.DefaultCacheTTL,
		"How long manager API answers are cached",
	)
	scriptRunnerURL := flag.String(
		"scriptRunnerURL",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_SCRIPT_RUNNER_URL", device.DefaultScriptRunnerURL),
		"Install script runner base URL",
	)
	analyticsURL := flag.String(
		"analyticsURL",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_ANALYTICS_URL", ""),
		"Analytics endpoint",
	)
	analyticsToken := flag.String(
		"analyticsToken",
		flagenv.StringEnvWithDefault("LEDGER_INSTALLER_ANALYTICS_TOKEN", ""),
		"Analytics token",
	)

	flag.Parse()

	if *prettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Debug logging enabled")
	}
	if *trace {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	cfg := config.Config{Version: Commit, PollInterval: *pollInterval}
	cfg.API.Listen = *listenAddr
	cfg.API.Token = *token
	cfg.Catalog.File = *catalogFile
	cfg.Catalog.ManagerURL = *managerURL
	cfg.Catalog.CacheTTL = *cacheTTL
	cfg.ScriptRunnerURL = *scriptRunnerURL
	cfg.Analytics.URL = *analyticsURL
	cfg.Analytics.Token = *analyticsToken

	if cfg.PollInterval <= 0 {
		log.Fatal().Dur("poll_interval", cfg.PollInterval).Msg("Invalid poll interval")
	}

	log.Info().Str("commit", Commit).Str("build_time", BuildTime).Msg("ledger-installer starting")

	var apps ledger.Catalog
	if cfg.Catalog.File != "" {
		fc, err := catalog.LoadFileCatalog(cfg.Catalog.File)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Catalog.File).Msg("Failed to load app catalog")
		}
		apps = fc
	} else {
		apps = catalog.NewHTTPCatalog(cfg.Catalog.ManagerURL, cfg.Catalog.CacheTTL)
	}

	tracker := analytics.NewTracker(cfg.Analytics.URL, cfg.Analytics.Token)

	core, consumer := bridge.NewPair[ledger.Event, ledger.Command]("ledger")

	client := ledger.NewClient(
		core,
		device.NewHIDTransport(),
		device.NewManager(apps, cfg.ScriptRunnerURL),
		apps,
		ledger.WithPollInterval(cfg.PollInterval),
		ledger.WithInstallObserver(tracker.TrackInstall),
	)
	hub := api.NewHub(consumer)

	ctx, cancel := context.WithCancel(context.Background())
	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		client.Run(ctx)
	}()
	go hub.Run(ctx)

	metricsSrv := metrics.NewPrometheusMetricsHandler(*metricsListenAddr)
	metricsSrv.Start()

	srv := api.NewAPI(cfg, hub)
	srv.Start()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-c

	log.Info().Msg("Going to stop...")

	srv.Stop()
	cancel()
	<-clientDone
	core.Close()
	consumer.Close()
	metricsSrv.Stop()
	os.Exit(0)
}
