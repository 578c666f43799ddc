package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skytrace/copilot/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func authRequest(t *testing.T, h http.Handler, target, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTokenAuth_Bearer(t *testing.T) {
	auth := newTokenAuth("s3cret", logger.NewNopLogger())
	rr := authRequest(t, auth.bearer(okHandler), "/jsonrpc", "Bearer s3cret")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("valid token: %d %q", rr.Code, rr.Body.String())
	}
	if rr := authRequest(t, auth.bearer(okHandler), "/jsonrpc?token=s3cret", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("query token on the HTTP endpoint = %d, want 401", rr.Code)
	}
}

func TestTokenAuth_UpgradeAcceptsQueryToken(t *testing.T) {
	auth := newTokenAuth("s3cret", logger.NewNopLogger())
	h := auth.upgrade(okHandler)
	if rr := authRequest(t, h, "/jsonrpc/ws?token=s3cret", ""); rr.Code != http.StatusOK {
		t.Errorf("query token = %d", rr.Code)
	}
	if rr := authRequest(t, h, "/jsonrpc/ws", "Bearer s3cret"); rr.Code != http.StatusOK {
		t.Errorf("bearer token = %d", rr.Code)
	}
	if rr := authRequest(t, h, "/jsonrpc/ws?token=nope", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d", rr.Code)
	}
	// a wrong header is not rescued by a right query token
	if rr := authRequest(t, h, "/jsonrpc/ws?token=s3cret", "Bearer nope"); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong bearer with query token = %d", rr.Code)
	}
}

func TestTokenAuth_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		target string
		header string
	}{
		{"missing header", "s3cret", "/jsonrpc", ""},
		{"wrong token", "s3cret", "/jsonrpc", "Bearer nope"},
		{"no bearer prefix", "s3cret", "/jsonrpc", "s3cret"},
		{"basic scheme", "s3cret", "/jsonrpc", "Basic s3cret"},
		{"empty secret", "", "/jsonrpc", "Bearer "},
		{"empty secret, empty query", "", "/jsonrpc/ws?token=", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			mock := logger.NewMockLogger()
			rr := authRequest(t, newTokenAuth(c.secret, mock).upgrade(okHandler), c.target, c.header)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			var resp map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp["jsonrpc"] != "2.0" {
				t.Fatalf("expected jsonrpc 2.0, got %v", resp["jsonrpc"])
			}
			errObj, ok := resp["error"].(map[string]any)
			if !ok {
				t.Fatalf("expected error object, got %v", resp["error"])
			}
			if errObj["code"].(float64) != -32600 || errObj["message"] != "Unauthorized" {
				t.Fatalf("unexpected error %v", errObj)
			}
			if len(mock.WarningCalls) != 1 {
				t.Errorf("refusal not logged: %v", mock.WarningCalls)
			}
		})
	}
}
