// ABOUTME: Tests for the HTTP bearer-token middleware
// ABOUTME: Covers header extraction and the pass/reject paths

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   bool
	}{
		{"valid header", "Bearer abc123", "abc123", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"empty token", "Bearer ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, errMsg := extractBearerToken(tt.header)
			if tt.wantErr && errMsg == "" {
				t.Error("extractBearerToken() errMsg = \"\", want error")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("extractBearerToken() errMsg = %q, want none", errMsg)
			}
			if token != tt.wantToken {
				t.Errorf("extractBearerToken() token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestHTTPAuthMiddleware(t *testing.T) {
	v, err := NewJWTVerifier([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}

	var reached bool
	handler := HTTPAuthMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes", func(t *testing.T) {
		reached = false
		token, err := v.Generate("user-123", time.Hour)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
		}
		if !reached {
			t.Error("inner handler not reached with valid token")
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if reached {
			t.Error("inner handler reached without a token")
		}
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
		}
		if reached {
			t.Error("inner handler reached with an invalid token")
		}
	})
}
