package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aurumvault/adminauth"
)

// DefaultCookieName is the session cookie read when no bearer token is sent.
const DefaultCookieName = "admin_session"

// SessionResolver is the part of [adminauth.Engine] the guards need.
type SessionResolver interface {
	Session(ctx context.Context, token string) (*adminauth.Session, error)
}

type sessionContextKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *adminauth.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session stored by a guard.
func SessionFromContext(ctx context.Context) (*adminauth.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*adminauth.Session)
	return sess, ok && sess != nil
}

// TokenFromRequest returns the bearer token, or the value of cookieName when
// there is no Authorization header.
func TokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}
	if cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Guard rejects requests without a live session with 401, or 503 when the
// session store is unreachable.
func Guard(engine SessionResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := TokenFromRequest(r, cookieName)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := engine.Session(r.Context(), token)
			if err != nil {
				status, _ := rejection(err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// rejection maps a Session error to a status and, for an expired session,
// the error kind to report.
func rejection(err error) (int, adminauth.ErrorKind) {
	switch {
	case errors.Is(err, adminauth.ErrUnavailable), errors.Is(err, adminauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, ""
	case errors.Is(err, adminauth.ErrSessionExpired):
		return http.StatusUnauthorized, adminauth.KindSessionExpired
	default:
		return http.StatusUnauthorized, ""
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
