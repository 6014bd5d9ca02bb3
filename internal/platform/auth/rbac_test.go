package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(c echo.Context, roles ...string) {
	ctx := context.WithValue(c.Request().Context(), UserRolesKey, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	contextWithRoles(c, "lab_tech")

	mw := RequireRole("lab_tech", "reception")
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	if err := h(c); err != nil {
		t.Fatalf("expected access, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	contextWithRoles(c, "admin")

	mw := RequireRole("lab_tech")
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	if err := h(c); err != nil {
		t.Fatalf("expected admin to pass any role check, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	contextWithRoles(c, "reception")

	mw := RequireRole("lab_tech")
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := RequireRole("lab_tech")
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without roles, got %v", err)
	}
}
