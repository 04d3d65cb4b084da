package ws

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// HandlerConfig configures the /ws endpoint.
type HandlerConfig struct {
	AllowedOrigins []string
	// AllowNoOrigin accepts upgrades without an Origin header, as sent by
	// non-browser clients.
	AllowNoOrigin bool
	SendQueue     int
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimRight(strings.TrimSpace(strings.ToLower(origin)), "/")
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string, allowNoOrigin bool) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, wildcard := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return allowNoOrigin
		}
		if wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		_, ok := allowed[u.Scheme+"://"+u.Host]
		return ok
	}
}

// extractToken finds the bearer credential in the Authorization header, the
// "bearer, <token>" subprotocol pair, or the token query parameter.
func extractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) > len("bearer ") && strings.EqualFold(authHeader[:len("bearer ")], "bearer ") {
		if token := strings.TrimSpace(authHeader[len("bearer "):]); token != "" {
			return token
		}
	}

	if protocolHeader := r.Header.Get("Sec-WebSocket-Protocol"); protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1]
		}
	}

	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// MakeHandler returns the /ws endpoint. The credential is checked before the
// upgrade, so a bad token is answered with 401 and no socket is opened.
func MakeHandler(registry *Registry, coordinator *Coordinator, cfg HandlerConfig) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins, cfg.AllowNoOrigin)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		user, err := registry.Verify(r.Context(), extractToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("ws upgrade failed")
			return
		}

		client := NewClient(conn, cfg.SendQueue)
		first := registry.Register(client, user)
		go client.writePump()
		coordinator.Serve(r.Context(), client, first)
	}
}
