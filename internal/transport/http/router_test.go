package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"mochimon-server-go/internal/domain/auth"
)

func TestHealthAndRequestID(t *testing.T) {
	router, err := Build(Options{
		Health: func() map[string]any { return map[string]any{"breaker": "closed"} },
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("request id header missing")
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := resp.Data.(map[string]interface{})
	if !resp.Success || data["status"] != "ok" || data["breaker"] != "closed" {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	router, _ := Build(Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID != "abc-123" {
		t.Fatalf("body request_id = %q, want abc-123", resp.RequestID)
	}
}

func TestMetricsRouteOnlyWhenConfigured(t *testing.T) {
	router, _ := Build(Options{})
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rec.Code)
	}

	router, _ = Build(Options{MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("up 1"))
	})})
	rec = httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "up 1" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	tokens, err := auth.NewAuthToken("secret")
	if err != nil {
		t.Fatalf("NewAuthToken() error = %v", err)
	}
	router, _ := Build(Options{AuthMiddleware: BearerAuth(tokens, nil)})
	router.Secured.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})

	valid, _ := tokens.GenerateToken("mobile-app")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.Engine.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && rec.Body.String() != "mobile-app" {
				t.Fatalf("subject = %q", rec.Body.String())
			}
		})
	}
}
