package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"provenly.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withSession validates a bearer token when one is presented and binds the
// session account to the request context. Requests without a token pass
// through unauthenticated; handlers that mutate state reject them.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		addr, err := session.Validate(token)
		if err != nil {
			if errors.Is(err, session.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(session.ContextWithAccount(r.Context(), addr)))
	})
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
