package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"
)

func TestIssueAndValidate(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != "operator" {
		t.Errorf("Unexpected claims %+v", claims)
	}

	other, _ := NewIssuer("other", time.Minute)
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for foreign secret, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	issuer, _ := NewIssuer("secret", time.Minute)
	issuer.ttl = -time.Minute

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected expired token to be rejected, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", time.Minute); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestMiddleware(t *testing.T) {
	issuer, _ := NewIssuer("secret", time.Minute)
	token, _ := issuer.Issue("alice")

	e := echo.New()
	e.GET("/guarded", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("operator").(string))
	}, issuer.Middleware(zaptest.NewLogger(t)))

	tests := []struct {
		name     string
		target   string
		header   string
		wantCode int
	}{
		{"missing", "/guarded", "", http.StatusUnauthorized},
		{"bearer", "/guarded", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "/guarded", "bearer " + token, http.StatusOK},
		{"query", "/guarded?token=" + token, "", http.StatusOK},
		{"garbage", "/guarded", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode == http.StatusOK && rec.Body.String() != "alice" {
				t.Errorf("Expected operator in context, got %q", rec.Body.String())
			}
		})
	}
}
