package web

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/JonMunkholm/cablemap/internal/core"
	"github.com/JonMunkholm/cablemap/internal/logging"
)

// ClientCookie names the cookie that ties a browser to its workflow.
const ClientCookie = "cablemap_client"

// clientSession resolves the client ID from its cookie, issuing a new one
// when the cookie is missing or malformed, and attaches it to the request
// context and its logger.
func (s *Server) clientSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var clientID string
		if c, err := r.Cookie(ClientCookie); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				clientID = id.String()
			}
		}
		if clientID == "" {
			clientID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientCookie,
				Value:    clientID,
				Path:     "/",
				MaxAge:   int(s.cfg.Session.IdleTimeout.Seconds()),
				HttpOnly: true,
				Secure:   s.cfg.Session.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := core.ContextWithClientID(r.Context(), clientID)
		ctx = logging.ContextWithFields(ctx, "client_id", clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// workflow returns the caller's workflow, or core.ErrNoSession when the
// client has none.
func (s *Server) workflow(r *http.Request) (*core.Workflow, error) {
	wf, ok := s.service.Lookup(core.ClientIDFromContext(r.Context()))
	if !ok {
		return nil, core.ErrNoSession
	}
	return wf, nil
}
