package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/auth"
)

func newAuthTestRouter(cfg auth.TokenConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(cfg), func(c *gin.Context) {
		userID, _ := UserIDFromContext(c)
		deviceID, _ := DeviceIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID, "deviceId": deviceID})
	})
	return r
}

func TestRequireAuth_MissingCookie(t *testing.T) {
	cfg := auth.TokenConfig{Secret: "s", Expiry: time.Hour, Issuer: "test"}
	r := newAuthTestRouter(cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuth_ValidCookie(t *testing.T) {
	cfg := auth.TokenConfig{Secret: "s", Expiry: time.Hour, Issuer: "test"}
	r := newAuthTestRouter(cfg)

	token, err := auth.CreateSessionToken("u1", "dev-1", cfg)
	if err != nil {
		t.Fatalf("CreateSessionToken: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRequireAuth_BadToken(t *testing.T) {
	cfg := auth.TokenConfig{Secret: "s", Expiry: time.Hour, Issuer: "test"}
	r := newAuthTestRouter(cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "garbage"})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
