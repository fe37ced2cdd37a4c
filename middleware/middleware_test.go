package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentledger/utils"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	var gotSubject, gotRole string
	handler := AuthMiddleware(testKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, gotRole, _ = GetSubjectFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	valid := signToken(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{
		"sub":  "operator-1",
		"role": "accountant",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "operator-1"})
	noSubject := signToken(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{"role": "accountant"})
	hs512 := signToken(t, jwt.SigningMethodHS512, testKey, jwt.MapClaims{"sub": "operator-1"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer " + valid, http.StatusOK},
		{"valid without prefix", valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"other algorithm", "Bearer " + hs512, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject, gotRole = "", ""
			req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status: got %d want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && (gotSubject != "operator-1" || gotRole != "accountant") {
				t.Errorf("context: got %q/%q", gotSubject, gotRole)
			}
		})
	}
}

func TestGetSubjectFromContextWithoutAuth(t *testing.T) {
	subject, role, err := GetSubjectFromContext(httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	if err == nil {
		t.Fatal("expected error for request without AuthMiddleware")
	}
	if subject != "" || role != "" {
		t.Errorf("got %q/%q, want empty subject and role", subject, role)
	}
}

func TestLoggingResponseWriterTracksStatusAndSize(t *testing.T) {
	rr := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rr, statusCode: http.StatusOK}
	lrw.WriteHeader(http.StatusCreated)
	lrw.Write([]byte("hello"))
	lrw.Write([]byte(" world"))

	if lrw.statusCode != http.StatusCreated || rr.Code != http.StatusCreated {
		t.Errorf("status: got %d/%d want %d", lrw.statusCode, rr.Code, http.StatusCreated)
	}
	if lrw.size != 11 {
		t.Errorf("size: got %d want 11", lrw.size)
	}
}

func TestLoggingMiddlewareRecordsMetrics(t *testing.T) {
	metrics := utils.NewMetrics()
	handler := LoggingMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/ok", "/fail", "/ok"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	snap := metrics.GetMetricsSnapshot()
	if snap["total_requests"].(int64) != 3 || snap["failed_requests"].(int64) != 1 {
		t.Errorf("unexpected metrics: %v", snap)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := utils.NewRateLimiter(2, time.Minute)
	handler := RateLimit(limiter, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, code := range want {
		req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != code {
			t.Fatalf("request %d: got %d want %d", i+1, rr.Code, code)
		}
		if code == http.StatusOK && rr.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("missing rate limit headers")
		}
	}

	// Другой клиент не затронут
	req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("other client: got %d", rr.Code)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/imports", nil))
	if rr.Code != http.StatusNoContent || called {
		t.Errorf("preflight: status %d, handler called %v", rr.Code, called)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}
