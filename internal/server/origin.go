// Package server validates HTTP origins for WebSocket requests to enforce
// configured access control.
package server

import (
	"log/slog"
	"net/http"

	"github.com/Tyrowin/roomchat/internal/config"
)

type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *slog.Logger
}

func newOriginPolicy(cfg config.Config, logger *slog.Logger) *originPolicy {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &originPolicy{allowAll: cfg.AllowAllOrigins, allowed: allowed, logger: logger}
}

func (o *originPolicy) isAllowed(r *http.Request) bool {
	if o.allowAll {
		return true
	}

	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := config.NormalizeOrigin(originHeader)
	if !ok {
		return false
	}

	_, exists := o.allowed[normalizedOrigin]
	return exists
}

// checkOrigin is the websocket.Upgrader CheckOrigin hook.
func (o *originPolicy) checkOrigin(r *http.Request) bool {
	if o.isAllowed(r) {
		return true
	}

	o.logger.Warn("blocked websocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
