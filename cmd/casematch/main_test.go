package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/casematch/internal/config"
	"github.com/ehr/casematch/internal/domain/similarity"
	"github.com/ehr/casematch/internal/platform/auth"
	"github.com/ehr/casematch/internal/platform/db"
	"github.com/ehr/casematch/internal/platform/telemetry"
)

type stubFinder struct {
	calls int
}

func (s *stubFinder) FindSimilarPatients(_ context.Context, id int64, _ similarity.SearchType) ([]similarity.SimilarityResult, error) {
	s.calls++
	if id == 404 {
		return nil, similarity.ErrPatientNotFound
	}
	return []similarity.SimilarityResult{{CandidateID: 2, CaseID: "CASE-0002", Score: 0.7, Percentage: 70}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		RequestTimeout: 5 * time.Second,
	}
}

func testServer(cfg *config.Config) (*stubFinder, *telemetry.Provider, http.Handler) {
	finder := &stubFinder{}
	metrics := telemetry.NewProvider()
	e := newServer(cfg, zerolog.Nop(), serverDeps{finder: finder, metrics: metrics})
	return finder, metrics, e
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Health(t *testing.T) {
	_, _, h := testServer(testConfig())

	rec := get(h, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("expected version in body, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on every response")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
}

func TestNewServer_DevSimilarRoute(t *testing.T) {
	finder, _, h := testServer(testConfig())

	rec := get(h, "/api/v1/patients/1/similar?type=diagnosis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"case_id":"CASE-0002"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if finder.calls != 1 {
		t.Errorf("expected one engine call, got %d", finder.calls)
	}

	if rec := get(h, "/api/v1/patients/404/similar", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown patient, got %d", rec.Code)
	}
}

func TestNewServer_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "test-secret"
	finder, _, h := testServer(cfg)

	if rec := get(h, "/api/v1/patients/1/similar", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := get(h, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected /health to stay open, got %d", rec.Code)
	}

	sign := func(roles ...string) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "dr-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Roles: roles,
		}).SignedString([]byte(cfg.AuthSigningKey))
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}

	if rec := get(h, "/api/v1/patients/1/similar", sign("billing")); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a role without access, got %d", rec.Code)
	}
	if rec := get(h, "/api/v1/patients/1/similar", sign("physician")); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for physician, got %d", rec.Code)
	}
	if finder.calls != 1 {
		t.Errorf("expected exactly one authorized engine call, got %d", finder.calls)
	}
}

func TestNewServer_MetricsRoute(t *testing.T) {
	_, metrics, h := testServer(testConfig())
	registerPoolGauges(metrics, func() *db.PoolStats {
		return &db.PoolStats{TotalConns: 4, AcquiredConns: 1, IdleConns: 3, MaxConns: 20}
	})

	get(h, "/api/v1/patients/1/similar", "")
	rec := get(h, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`casematch_http_requests_total{method="GET",route="/api/v1/patients/:id/similar",status="200"} 1`,
		`casematch_db_pool_total_conns 4`,
		`casematch_db_pool_max_conns 20`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := &config.Config{
		SimilarityPoolSize:         80,
		SimilarityResultLimit:      10,
		SimilarityMinScore:         0.2,
		SimilarityWorkers:          4,
		SimilarityCandidateRecords: 12,
		SimilarityCandidateLabs:    9,
	}
	ec := engineConfig(cfg)
	if ec.PoolSize != 80 || ec.Workers != 4 || ec.CandidateVisits != 12 || ec.CandidateLabs != 9 {
		t.Errorf("unexpected engine bounds %+v", ec)
	}
	if ec.Rank.MinScore != 0.2 || ec.Rank.Limit != 10 {
		t.Errorf("unexpected rank options %+v", ec.Rank)
	}
	if ec.Weights != similarity.DefaultWeights() {
		t.Errorf("expected default weights, got %+v", ec.Weights)
	}
}

func TestNewExtractor(t *testing.T) {
	x, err := newExtractor("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terms := x.Extract("asthma", similarity.TermDiagnosis); len(terms) == 0 || terms[0].Category != similarity.CategoryRespiratory {
		t.Errorf("expected built-in dictionary, got %+v", terms)
	}

	path := filepath.Join(t.TempDir(), "terms.yaml")
	doc := "categories:\n  - category: dermatological\n    keywords: [asthma]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	x, err = newExtractor(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terms := x.Extract("asthma", similarity.TermDiagnosis); len(terms) == 0 || terms[0].Category != similarity.CategoryDermatological {
		t.Errorf("expected file dictionary to replace the built-in one, got %+v", terms)
	}

	if _, err := newExtractor(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing dictionary file")
	}
}

func TestFormatStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := formatStatus([]db.MigrationStatus{
		{Version: 1, Name: "core", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "indexes"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out)
	}
	if !strings.Contains(lines[1], "applied") || !strings.Contains(lines[1], "2024-03-01T12:00:00Z") {
		t.Errorf("unexpected applied row %q", lines[1])
	}
	if !strings.Contains(lines[2], "pending") || !strings.HasSuffix(lines[2], "-") {
		t.Errorf("unexpected pending row %q", lines[2])
	}
}

func TestNewLogger_WritesToGivenStream(t *testing.T) {
	var buf bytes.Buffer
	prodLogger := newLogger("production", &buf)
	prodLogger.Info().Int("results", 3).Msg("similar patients computed")

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "similar patients computed" || line["results"] != float64(3) {
		t.Errorf("unexpected log line %v", line)
	}

	buf.Reset()
	devLogger := newLogger("development", &buf)
	devLogger.Info().Msg("console")
	if !strings.Contains(buf.String(), "console") || strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console output, got %q", buf.String())
	}
}

func TestCLILogger_UsesStderr(t *testing.T) {
	t.Setenv("ENV", "production")
	cmd := similarCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	logger := cliLogger(cmd)
	logger.Info().Msg("similar patients computed")
	if stdout.Len() != 0 {
		t.Errorf("expected stdout to stay clean for JSON output, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "similar patients computed") {
		t.Errorf("expected log line on stderr, got %q", stderr.String())
	}
}
