package server

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// AuthMiddleware requires the API key as a bearer token or a "token" query
// parameter. It lets everything through when no key hash is configured.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeyHash == nil {
			next.ServeHTTP(w, r)
			return
		}

		var token string
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanoflow"`)
			writeError(w, s.logger, flowerr.New(flowerr.CodeServerAuthUnauthorized, "missing token"))
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.apiKeyHash, []byte(token)); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanoflow"`)
			writeError(w, s.logger, flowerr.New(flowerr.CodeServerAuthUnauthorized, "invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashAPIKey returns the bcrypt hash to configure as api_key_hash.
func HashAPIKey(key string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
