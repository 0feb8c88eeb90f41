package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/beeper/libserv/pkg/health"
	"github.com/beeper/libserv/pkg/requestlog"

	"github.com/beeper/ledger-installer/internal/config"
	"github.com/beeper/ledger-installer/internal/metrics"
)

type api struct {
	log    zerolog.Logger
	server *http.Server
	hub    *Hub
	token  string
}

func NewAPI(cfg config.Config, hub *Hub) *api {
	logger := log.With().
		Str("component", "api").
		Logger()

	api := api{
		log:   logger,
		hub:   hub,
		token: cfg.API.Token,
	}

	api.server = &http.Server{Addr: cfg.API.Listen, Handler: api.router()}

	return &api
}

func (a *api) router() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(a.log))
	r.Use(hlog.RequestIDHandler("request_id", ""))
	r.Use(requestlog.AccessLogger(false))
	r.Use(metrics.TrackHTTPMetrics) // must be after requestlog.AccessLogger

	r.Get("/health", health.Health)

	r.Get("/api/v1/status", a.getStatus)
	r.Get("/api/v1/events", a.requireToken(a.eventsWebsocket))
	r.Post("/api/v1/command/{command}", a.requireToken(a.postCommand))
	r.Post("/api/v1/alarm/reset", a.requireToken(a.resetAlarm))

	return r
}

// Handler serves the relay routes without a listener of its own.
func (a *api) Handler() http.Handler {
	return a.server.Handler
}

func (a *api) Start() {
	go func() {
		a.log.Info().Msgf("Starting HTTP server at: %s", a.server.Addr)

		err := a.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatal().Err(err).Msg("Error while listening")
		} else {
			a.log.Info().Msg("Listener stopped")
		}
	}()
}

func (a *api) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.log.Info().Msg("API shutdown initiated...")
	err := a.server.Shutdown(ctx)
	if err != nil {
		a.log.Err(err).Msg("error shutting down server")
	}

	a.log.Info().Msg("API shutdown complete")
}
