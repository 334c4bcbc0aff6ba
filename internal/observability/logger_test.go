package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWithFieldsAccumulates(t *testing.T) {
	ctx := context.Background()
	ctx = WithFields(ctx, Field{"a", 1})
	ctx = WithFields(ctx, Field{"b", "two"}, Field{"c", true})

	fields := getObservabilityFields(ctx)
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[0].Key != "a" || fields[1].Key != "b" || fields[2].Key != "c" {
		t.Errorf("fields out of order: %+v", fields)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	parent := WithFields(context.Background(), Field{"a", 1})
	_ = WithFields(parent, Field{"b", 2})

	if got := len(getObservabilityFields(parent)); got != 1 {
		t.Errorf("parent context gained fields, got %d", got)
	}
}

func TestMergeFieldsDeduplicates(t *testing.T) {
	ctx := WithFields(context.Background(), Field{"status", "old"})
	merged := mergeFields(ctx, []MetricField{{"status", "new"}, {"latency", 10}})

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged fields, got %d", len(merged))
	}
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := NewLogger()

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/posts", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	router.ServeHTTP(w, req)

	id := w.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("expected X-Request-ID response header")
	}
	if !strings.HasPrefix(id, "req-") {
		t.Errorf("expected generated request id with req- prefix, got %q", id)
	}
}

func TestMiddlewarePreservesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := NewLogger()

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/posts", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-fixed" {
		t.Errorf("expected caller-supplied request id to be preserved, got %q", got)
	}
}
