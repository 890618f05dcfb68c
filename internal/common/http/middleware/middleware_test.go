package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mathtutor/internal/common/auth"
	"mathtutor/internal/common/metrics"
	"mathtutor/internal/common/ratelimit"
	"mathtutor/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTraceContextMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(TraceContextMiddleware())
	var ctxTrace, ctxRequest interface{}
	router.GET("/trace", func(c *gin.Context) {
		ctxTrace = c.Request.Context().Value(contextkey.TraceID)
		ctxRequest = c.Request.Context().Value(contextkey.RequestID)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name          string
		headers       map[string]string
		wantTraceID   string
		wantRequestID string
	}{
		{name: "generate ids"},
		{
			name:          "preserve incoming ids",
			headers:       map[string]string{"X-Trace-Id": "trace-123", "X-Request-Id": "req-123"},
			wantTraceID:   "trace-123",
			wantRequestID: "req-123",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			router.ServeHTTP(rec, req)

			traceID := rec.Header().Get("X-Trace-Id")
			requestID := rec.Header().Get("X-Request-Id")
			if traceID == "" || requestID == "" {
				t.Fatalf("expected ids in response headers")
			}
			if tc.wantTraceID != "" && traceID != tc.wantTraceID {
				t.Fatalf("trace id = %q, want %q", traceID, tc.wantTraceID)
			}
			if tc.wantRequestID != "" && requestID != tc.wantRequestID {
				t.Fatalf("request id = %q, want %q", requestID, tc.wantRequestID)
			}
			if fmt.Sprint(ctxTrace) != traceID || fmt.Sprint(ctxRequest) != requestID {
				t.Fatalf("request context ids do not match headers")
			}
		})
	}
}

func TestRequireAuthRoles(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "", time.Hour)
	adminToken, _, _ := tokens.Issue(1, auth.RoleAdmin)
	userToken, _, _ := tokens.Issue(2, auth.RoleUser)

	router := gin.New()
	router.DELETE("/users/:id", RequireAuth(tokens, AuthPolicy{Roles: []string{auth.RoleAdmin}}), func(c *gin.Context) {
		if v, _ := c.Get("user_id"); v != int64(1) {
			t.Errorf("expected caller id 1, got %v", v)
		}
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + userToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, "/users/9", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRequireAuthOpenWhenDisabled(t *testing.T) {
	router := gin.New()
	router.POST("/problems/seed", RequireAuth(auth.NewTokenManager("", "", 0), AuthPolicy{Roles: []string{auth.RoleAdmin}}), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/problems/seed", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected open guard, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareRejectsOverBudget(t *testing.T) {
	router := gin.New()
	router.POST("/problems/:id/submit",
		RateLimitMiddleware(ratelimit.NewLocalLimiter(), "submit", RateLimitPolicy{Window: time.Hour, IPMax: 1}),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/problems/1/submit", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	router.GET("/problems", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/problems", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing allow origin header")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/problems", nil)
	req.Header.Set("Origin", "http://evil.example")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rec.Code)
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.New()
	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/problems/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/problems/3", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/problems/4", nil))

	n, err := testutil.GatherAndCount(m.Registry(), "mathtutor_http_requests_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single route series, got %d", n)
	}
}
