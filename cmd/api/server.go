package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"liquiflow/auth"
	"liquiflow/fundrequest"
	"liquiflow/liquidation"
	"liquiflow/reminder"
	"liquiflow/report"
	"liquiflow/school"

	"go.uber.org/zap"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

type schoolService interface {
	GetByID(ctx context.Context, id string) (school.School, error)
	List(ctx context.Context, district string, limit int) ([]school.School, error)
}

type fundRequestService interface {
	Create(ctx context.Context, params fundrequest.CreateParams) (fundrequest.Request, error)
	Get(ctx context.Context, id string) (fundrequest.Request, error)
	List(ctx context.Context, filters fundrequest.Filters) (fundrequest.ListResult, error)
	Review(ctx context.Context, params fundrequest.ReviewParams) (fundrequest.Request, error)
}

type liquidationService interface {
	Open(ctx context.Context, params liquidation.OpenParams) (liquidation.Record, error)
	ApplyAction(ctx context.Context, params liquidation.ApplyParams) (liquidation.Record, error)
	Get(ctx context.Context, id string) (liquidation.View, error)
	ListForActor(ctx context.Context, actor liquidation.Actor, filters liquidation.Filters) (liquidation.ListResult, error)
	BulkArchive(ctx context.Context, ids []string) error
	BulkRestore(ctx context.Context, ids []string) error
}

type reminderGate interface {
	Evaluate(ctx context.Context, user auth.User) (reminder.Digest, bool, error)
}

type reportService interface {
	Aging(ctx context.Context, filter report.Filter, page, pageSize int) (report.Page, error)
	Export(ctx context.Context, filter report.Filter, format report.ExportFormat, w io.Writer) error
	MonthStatuses(ctx context.Context, month string) ([]report.MonthStatus, error)
}

// Server holds the wired services and exposes the REST surface.
type Server struct {
	authService        authService
	schoolService      schoolService
	fundRequestService fundRequestService
	liquidationService liquidationService
	reminderGate       reminderGate
	reportService      reportService
	logger             *zap.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("/api/schools", s.requireAuth(s.handleSchools))
	mux.HandleFunc("/api/schools/", s.requireAuth(s.handleSchool))

	mux.HandleFunc("/api/fund-requests", s.requireAuth(s.handleFundRequests))
	mux.HandleFunc("/api/fund-requests/", s.requireAuth(s.handleFundRequestDetail))

	mux.HandleFunc("/api/liquidations", s.requireAuth(s.handleLiquidations))
	mux.HandleFunc("/api/liquidations/bulk-archive", s.requireAuth(s.handleBulkArchive))
	mux.HandleFunc("/api/liquidations/bulk-restore", s.requireAuth(s.handleBulkRestore))
	mux.HandleFunc("/api/liquidations/", s.requireAuth(s.handleLiquidationDetail))

	mux.HandleFunc("/api/reminder", s.requireAuth(s.handleReminder))
	mux.HandleFunc("/api/reports/unliquidated-schools", s.requireAuth(s.handleUnliquidatedSchools))

	return s.logRequests(mux)
}

// requireAuth verifies the bearer token and stashes identity in the context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

func roleFrom(ctx context.Context) auth.Role {
	role, _ := ctx.Value(ctxKeyRole).(auth.Role)
	return role
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}

// writeLiquidationError maps domain errors onto the REST error contract.
// Invalid transitions surface their message verbatim so the client can show
// the allowed-action set; a role denial is 403 where a state conflict is 409.
func (s *Server) writeLiquidationError(w http.ResponseWriter, err error) {
	var invalid *liquidation.InvalidTransitionError
	var partial *liquidation.PartialBatchError
	switch {
	case errors.As(err, &invalid):
		if invalid.RoleDenied {
			writeError(w, http.StatusForbidden, "role_denied", invalid.Error())
			return
		}
		writeError(w, http.StatusConflict, "invalid_transition", invalid.Error())
	case errors.As(err, &partial):
		writeJSON(w, http.StatusMultiStatus, bulkResponse(partial))
	case errors.Is(err, liquidation.ErrStaleRead):
		writeError(w, http.StatusConflict, "stale_read", "record changed since last read, re-fetch and retry")
	case errors.Is(err, liquidation.ErrOpenLiquidationExists):
		writeError(w, http.StatusConflict, "open_liquidation_exists", "an open liquidation already exists for this fund request")
	case errors.Is(err, liquidation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "liquidation not found")
	case errors.Is(err, fundrequest.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "fund request not found")
	case errors.Is(err, fundrequest.ErrNotApproved):
		writeError(w, http.StatusConflict, "request_not_approved", "fund request is not approved")
	default:
		s.logger.Error("liquidation request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
