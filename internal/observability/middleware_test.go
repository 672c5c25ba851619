package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestLoggerTagsMessageKind(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.POST("/api/exchange", func(c *gin.Context) {
		c.Set(KeyMessageKind, "dexc:ContractRequest")
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/exchange", nil)
	r.ServeHTTP(w, req)

	line := buf.String()
	if !strings.Contains(line, `"kind":"dexc:ContractRequest"`) {
		t.Fatalf("log line missing message kind: %s", line)
	}
	if !strings.Contains(line, `"path":"/api/exchange"`) {
		t.Fatalf("log line missing path: %s", line)
	}
}

func TestRequestLoggerOmitsKindWhenUnset(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if strings.Contains(buf.String(), `"kind"`) {
		t.Fatalf("unexpected kind field: %s", buf.String())
	}
}
