package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/casematch/internal/platform/auth"
)

// AuditEntry records one access to patient data: who looked at which
// reference patient and what the outcome was.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	UserRoles  []string
	PatientID  string
	Action     string
	Method     string
	Path       string
	Query      string
	IPAddress  string
	StatusCode int
}

// Audit logs an access entry for every /api/v1 request after the handler
// has run, including denied and failed ones.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := auditEntry(c, err)
			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("query", entry.Query).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("phi_access")

			return err
		}
	}
}

func auditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	rid, _ := c.Get("request_id").(string)
	return AuditEntry{
		Timestamp:  time.Now().UTC(),
		RequestID:  rid,
		UserID:     auth.UserIDFromContext(ctx),
		UserRoles:  auth.RolesFromContext(ctx),
		PatientID:  c.Param("id"),
		Action:     auditAction(c.Path()),
		Method:     req.Method,
		Path:       req.URL.Path,
		Query:      req.URL.RawQuery,
		IPAddress:  c.RealIP(),
		StatusCode: responseStatus(c, err),
	}
}

// auditAction names the access. The API is read-only.
func auditAction(route string) string {
	if strings.HasSuffix(route, "/similar") {
		return "similarity_search"
	}
	return "read"
}
