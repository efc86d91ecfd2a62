package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

type fakeRow struct {
	tables []string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]string) = r.tables
	return nil
}

type fakeConn struct {
	pingErr error
	row     fakeRow

	schemaArg string
}

func (f *fakeConn) Ping(context.Context) error { return f.pingErr }

func (f *fakeConn) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.schemaArg, _ = args[0].(string)
	return f.row
}

func runHealth(t *testing.T, p healthChecker) (int, HealthReport) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	stats := func() *PoolStats { return &PoolStats{TotalConns: 3, MaxConns: 20} }
	if err := healthHandler(p, "clinic_a", stats)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, report
}

func TestHealthHandler_Healthy(t *testing.T) {
	conn := &fakeConn{row: fakeRow{tables: []string{"lab_results", "patients", "medical_records"}}}
	code, report := runHealth(t, conn)
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if report.Status != "healthy" || report.Schema != "clinic_a" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Pool == nil || report.Pool.MaxConns != 20 || !report.Pool.Healthy {
		t.Errorf("unexpected pool stats %+v", report.Pool)
	}
	if conn.schemaArg != "clinic_a" {
		t.Errorf("expected tables looked up in clinic_a, got %q", conn.schemaArg)
	}
}

func TestHealthHandler_Unreachable(t *testing.T) {
	code, report := runHealth(t, &fakeConn{pingErr: errors.New("connection refused")})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if report.Status != "unreachable" || report.Error != "connection refused" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Pool == nil || report.Pool.Healthy {
		t.Errorf("expected unhealthy pool, got %+v", report.Pool)
	}
}

func TestHealthHandler_MissingTables(t *testing.T) {
	code, report := runHealth(t, &fakeConn{row: fakeRow{tables: []string{"patients"}}})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if report.Status != "not_migrated" {
		t.Errorf("expected not_migrated, got %q", report.Status)
	}
	if len(report.MissingTables) != 2 || report.MissingTables[0] != "medical_records" || report.MissingTables[1] != "lab_results" {
		t.Errorf("unexpected missing tables %v", report.MissingTables)
	}
}

func TestHealthHandler_EmptySchema(t *testing.T) {
	_, report := runHealth(t, &fakeConn{row: fakeRow{}})
	if len(report.MissingTables) != len(SearchTables) {
		t.Errorf("expected every search table missing, got %v", report.MissingTables)
	}
}

func TestHealthHandler_TableQueryFails(t *testing.T) {
	code, report := runHealth(t, &fakeConn{row: fakeRow{err: errors.New("permission denied")}})
	if code != http.StatusServiceUnavailable || report.Status != "unreachable" {
		t.Errorf("expected 503 unreachable, got %d %+v", code, report)
	}
}
