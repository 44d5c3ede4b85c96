package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		id, _ := c.Get(RequestIDKey)
		seen, _ = id.(string)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	header := w.Header().Get(RequestIDHeader)
	if header == "" {
		t.Fatal("response missing X-Request-ID header")
	}
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("generated request ID %q is not a UUID: %v", header, err)
	}
	if seen != header {
		t.Errorf("context request ID %q != response header %q", seen, header)
	}
}

func TestRequestIDMiddleware_ReusesInboundID(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "upstream-id-42")
	router.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "upstream-id-42" {
		t.Errorf("request ID = %q, want upstream-id-42", got)
	}
}
