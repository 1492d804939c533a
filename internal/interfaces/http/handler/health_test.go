package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	okCheck := CheckFunc(func(context.Context) error { return nil })
	badCheck := CheckFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		deps       []Dependency
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name: "optional failure degrades",
			deps: []Dependency{
				{Name: "postgres", Checker: okCheck, Required: true},
				{Name: "redis", Checker: badCheck},
				{Name: "vector", Checker: nil},
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "degraded", "vector": "disabled"},
		},
		{
			name: "required failure",
			deps: []Dependency{
				{Name: "postgres", Checker: badCheck, Required: true},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "error"},
		},
		{
			name:       "required missing",
			deps:       []Dependency{{Name: "postgres", Required: true}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "missing"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", NewHealthHandler("v1", tt.deps...).Ready)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body readinessResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got == nil || got.Status != want {
					t.Errorf("check %s = %+v, want %s", name, got, want)
				}
			}
		})
	}
}
