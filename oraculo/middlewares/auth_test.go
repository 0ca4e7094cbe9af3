package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"oraculo/oraculo/config"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestOwnerFromToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{"numeric id", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 42}), "42", false},
		{"string id", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "64f1c0ffee"}), "64f1c0ffee", false},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": 1}), "", true},
		{"missing claim", sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "x"}), "", true},
		{"garbage", "not.a.token", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OwnerFromToken(testSecret, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	var seen string
	h := AuthMiddleware(config.Config{JWTSecret: testSecret})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OwnerID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 7}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || seen != "7" {
		t.Errorf("expected owner 7, got %q (status %d)", seen, rr.Code)
	}
}
