package web

import (
	"context"
	"net/http"

	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/session"
)

type sessionKey struct{}

// withSession binds the caller's session to the request context, creating
// one and setting the cookie when the request carries none.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var sess *session.Session
		if c, err := r.Cookie(s.cookieName); err == nil {
			sess, _ = s.sessions.Get(ctx, c.Value)
		}
		if sess == nil {
			sess = s.sessions.Create(ctx)
			http.SetCookie(w, &http.Cookie{
				Name:     s.cookieName,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   r.TLS != nil,
			})
		}

		ctx = logging.With(ctx, logging.From(ctx).With("session", sess.ID()))
		ctx = context.WithValue(sess.Context(ctx), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}
