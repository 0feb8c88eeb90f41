package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
)

// requireToken checks the bearer token when one is configured. Browsers
// cannot set headers on websocket upgrades, so ?token= is accepted too.
func (a *api) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.token == "" {
			next(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			hlog.FromRequest(r).Warn().Msg("Request missing auth token")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			hlog.FromRequest(r).Warn().Msg("Invalid auth token")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
