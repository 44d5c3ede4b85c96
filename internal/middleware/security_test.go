package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serveWithHeaders(t *testing.T, cfg SecurityHeadersConfig) http.Header {
	t.Helper()
	router := gin.New()
	router.Use(SecurityHeadersMiddleware(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w.Header()
}

func TestSecurityHeadersMiddleware_APIDefaults(t *testing.T) {
	h := serveWithHeaders(t, APISecurityHeadersConfig())

	if got := h.Get("Strict-Transport-Security"); !strings.Contains(got, "max-age=31536000") {
		t.Errorf("HSTS = %q, want max-age=31536000", got)
	}
	if !strings.Contains(h.Get("Strict-Transport-Security"), "includeSubDomains") {
		t.Error("HSTS missing includeSubDomains")
	}
	if got := h.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := h.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := h.Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
		t.Errorf("CSP = %q", got)
	}
	if got := h.Get("Referrer-Policy"); got != "no-referrer" {
		t.Errorf("Referrer-Policy = %q, want no-referrer", got)
	}
	if got := h.Get("Cross-Origin-Resource-Policy"); got != "same-origin" {
		t.Errorf("Cross-Origin-Resource-Policy = %q, want same-origin", got)
	}
}

func TestSecurityHeadersMiddleware_DisabledHeadersOmitted(t *testing.T) {
	h := serveWithHeaders(t, SecurityHeadersConfig{})

	if got := h.Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS = %q, want empty when disabled", got)
	}
	if got := h.Get("X-Frame-Options"); got != "" {
		t.Errorf("X-Frame-Options = %q, want empty when disabled", got)
	}
	// Unconditional hardening headers remain.
	if got := h.Get("X-Permitted-Cross-Domain-Policies"); got != "none" {
		t.Errorf("X-Permitted-Cross-Domain-Policies = %q, want none", got)
	}
}
