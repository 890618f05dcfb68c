package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mathtutor/internal/common/auth"
	"mathtutor/internal/common/db"
	"mathtutor/internal/common/metrics"
	problemController "mathtutor/internal/problem/controller"
	submitController "mathtutor/internal/submit/controller"
	userController "mathtutor/internal/user/controller"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDeps(tokens *auth.TokenManager) Dependencies {
	return Dependencies{
		Auth:        userController.NewAuthController(nil),
		Users:       userController.NewUserController(nil),
		Problems:    problemController.NewProblemController(nil),
		Submissions: submitController.NewSubmitController(nil),
		Uploads:     submitController.NewUploadController(nil),
		Tokens:      tokens,
		Metrics:     metrics.New(),
	}
}

func TestRouteTable(t *testing.T) {
	router := NewRouter(testDeps(auth.NewTokenManager("", "", 0)))
	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /auth/signup",
		"POST /auth/login",
		"POST /auth/reset-password",
		"GET /users",
		"POST /users",
		"GET /users/:id",
		"PUT /users/:id",
		"DELETE /users/:id",
		"POST /users/:id/profile-image",
		"GET /users/:id/rating-history",
		"GET /users/:id/submissions",
		"GET /problems",
		"POST /problems/seed",
		"GET /problems/:id",
		"POST /problems/:id/submit",
		"GET /questions",
		"GET /submissions/:id",
		"POST /upload",
		"GET /healthz",
		"GET /metrics",
	} {
		if !registered[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := NewRouter(testDeps(auth.NewTokenManager("", "", 0)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mathtutor_http_requests_total") {
		t.Fatalf("metrics endpoint missing request counters: %d", rec.Code)
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace middleware not installed")
	}
}

func TestAdminRoutesGuarded(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "mathtutor", time.Hour)
	userToken, _, err := tokens.Issue(3, auth.RoleUser)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	router := NewRouter(testDeps(tokens))

	cases := []struct {
		method string
		path   string
		token  string
		want   int
	}{
		{http.MethodDelete, "/users/3", "", http.StatusUnauthorized},
		{http.MethodDelete, "/users/3", userToken, http.StatusForbidden},
		{http.MethodPost, "/problems/seed", "", http.StatusUnauthorized},
		{http.MethodPost, "/users", userToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock failed: %v", err)
	}
	defer sqlDB.Close()
	mock.ExpectPing()
	database, err := db.NewMySQLWithDB(sqlDB)
	if err != nil {
		t.Fatalf("wrap db failed: %v", err)
	}
	deps := testDeps(auth.NewTokenManager("", "", 0))
	deps.Database = db.NewManager(database)
	router := NewRouter(deps)

	mock.ExpectPing()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"in_use"`) {
		t.Fatalf("unexpected healthy response %d %s", rec.Code, rec.Body.String())
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Fatalf("unexpected degraded response %d %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
