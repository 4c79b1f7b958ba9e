// Package auth guards the run history API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const challenge = `Bearer realm="manifest-sync"`

// bearerToken returns the credential of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, cred, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	cred = strings.TrimSpace(cred)
	return cred, cred != ""
}

// RequireToken rejects requests that do not carry token as a bearer
// credential. Paths listed in public are always served. An empty token turns
// the check off.
func RequireToken(token string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := bearerToken(r)
			switch {
			case !ok:
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "missing API token", http.StatusUnauthorized)
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				http.Error(w, "invalid API token", http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
