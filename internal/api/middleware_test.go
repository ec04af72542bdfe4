package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestHasAdminRole(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   bool
	}{
		{name: "role string admin", claims: jwt.MapClaims{"role": "admin"}, want: true},
		{name: "role string user", claims: jwt.MapClaims{"role": "user"}, want: false},
		{name: "roles array contains admin", claims: jwt.MapClaims{"roles": []interface{}{"user", "admin"}}, want: true},
		{name: "roles array without admin", claims: jwt.MapClaims{"roles": []interface{}{"user"}}, want: false},
		{name: "no role claims", claims: jwt.MapClaims{"sub": "user_1"}, want: false},
		{name: "role wrong type", claims: jwt.MapClaims{"role": 42}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasAdminRole(tt.claims); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(next)

	tests := []struct {
		name       string
		ctxValue   interface{}
		setValue   bool
		wantStatus int
	}{
		{name: "admin allowed", ctxValue: true, setValue: true, wantStatus: http.StatusOK},
		{name: "non-admin rejected", ctxValue: false, setValue: true, wantStatus: http.StatusForbidden},
		{name: "missing claim rejected", setValue: false, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
			if tt.setValue {
				req = req.WithContext(context.WithValue(req.Context(), authAdminKey, tt.ctxValue))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
