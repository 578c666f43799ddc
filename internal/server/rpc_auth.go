package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/skytrace/copilot/pkg/logger"
)

// tokenQuery carries the secret on WebSocket upgrades, where browser clients
// cannot set an Authorization header.
const tokenQuery = "token"

// tokenAuth guards the RPC endpoints with the configured secret. An empty
// secret refuses every request.
type tokenAuth struct {
	secret []byte
	l      logger.Logger
}

func newTokenAuth(secret string, l logger.Logger) *tokenAuth {
	return &tokenAuth{secret: []byte(secret), l: l}
}

// bearer accepts only "Authorization: Bearer <secret>".
func (a *tokenAuth) bearer(next http.Handler) http.Handler {
	return a.guard(next, false)
}

// upgrade also accepts ?token=<secret>.
func (a *tokenAuth) upgrade(next http.Handler) http.Handler {
	return a.guard(next, true)
}

func (a *tokenAuth) guard(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok && allowQuery {
			token, ok = r.URL.Query().Get(tokenQuery), true
		}
		if !ok || !a.valid(token) {
			a.l.Warning("rpc: refused %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *tokenAuth) valid(token string) bool {
	if len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), a.secret) == 1
}

// writeUnauthorized answers with a JSON-RPC error body so RPC clients decode
// it like any other failure.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    int(codeUnauthorized),
			"message": "Unauthorized",
		},
		"id": nil,
	})
}
