package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if roles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithRoles("nurse")
	if err := RequireRole("physician", "nurse")(okHandler)(c); err != nil {
		t.Errorf("expected nurse to pass, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
	}{
		{"no roles", nil},
		{"other role", []string{"billing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole("physician", "researcher")(okHandler)(contextWithRoles(tt.roles...))
			expectStatus(t, err, http.StatusForbidden)
		})
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c := contextWithRoles("admin")
	if err := RequireRole("researcher")(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if uid := UserIDFromContext(context.Background()); uid != "" {
		t.Errorf("expected empty user id, got %q", uid)
	}
	ctx := context.WithValue(context.Background(), UserIDKey, "u-42")
	if uid := UserIDFromContext(ctx); uid != "u-42" {
		t.Errorf("expected u-42, got %q", uid)
	}
}
