package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"groupchat/internal/pkg/logx"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	logx.Silence()
	m.Run()
}

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken(&Payload{UserID: "ABCD1234", DisplayName: "alice", IsAdmin: true}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	payload, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if payload.UserID != "ABCD1234" || payload.DisplayName != "alice" || !payload.IsAdmin {
		t.Errorf("Unexpected payload %+v", payload)
	}
	if payload.Issuer != TokenIssuer {
		t.Errorf("Expected issuer %q, got %q", TokenIssuer, payload.Issuer)
	}
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	token, _ := GenerateToken(&Payload{UserID: "ABCD1234"}, testSecret, time.Hour)
	if _, err := ParseToken(token, "other"); err == nil {
		t.Error("Expected signature error")
	}

	expired, _ := GenerateToken(&Payload{UserID: "ABCD1234"}, testSecret, -time.Minute)
	if _, err := ParseToken(expired, testSecret); err == nil {
		t.Error("Expected expiry error")
	}
}

func TestIdentityExtractorMiddleware(t *testing.T) {
	token, _ := GenerateToken(&Payload{UserID: "ABCD1234", DisplayName: "alice"}, testSecret, time.Hour)

	var got *Payload
	handler := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPayloadFromContext(r)
	}))

	tests := []struct {
		name    string
		build   func(*http.Request)
		wantUID string
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "ABCD1234"},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, "ABCD1234"},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", token) }, ""},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, ""},
		{"anonymous", func(r *http.Request) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.build(req)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			gotUID := ""
			if got != nil {
				gotUID = got.UserID
			}
			if gotUID != tt.wantUID {
				t.Errorf("Expected uid %q, got %q", tt.wantUID, gotUID)
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	handler := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/friends", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}
