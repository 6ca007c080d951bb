package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"liquiflow/auth"
	"liquiflow/fundrequest"
	"liquiflow/liquidation"
	"liquiflow/reminder"
	"liquiflow/report"
	"liquiflow/school"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubAuthService struct {
	user *auth.User
	err  error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return s.user, s.err
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	if s.err != nil {
		return auth.LoginResult{}, s.err
	}
	return auth.LoginResult{Token: "tok", User: *s.user}, nil
}

func (s *stubAuthService) VerifyToken(_ string) (string, auth.Role, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return s.user.ID, s.user.Role, nil
}

func (s *stubAuthService) GetUserByID(_ context.Context, _ string) (*auth.User, error) {
	return s.user, s.err
}

type stubSchoolService struct {
	school  school.School
	schools []school.School
	err     error
}

func (s *stubSchoolService) GetByID(_ context.Context, _ string) (school.School, error) {
	return s.school, s.err
}

func (s *stubSchoolService) List(_ context.Context, _ string, _ int) ([]school.School, error) {
	return s.schools, s.err
}

type stubFundRequestService struct {
	request fundrequest.Request
	list    fundrequest.ListResult
	err     error
}

func (s *stubFundRequestService) Create(_ context.Context, _ fundrequest.CreateParams) (fundrequest.Request, error) {
	return s.request, s.err
}

func (s *stubFundRequestService) Get(_ context.Context, _ string) (fundrequest.Request, error) {
	return s.request, s.err
}

func (s *stubFundRequestService) List(_ context.Context, _ fundrequest.Filters) (fundrequest.ListResult, error) {
	return s.list, s.err
}

func (s *stubFundRequestService) Review(_ context.Context, _ fundrequest.ReviewParams) (fundrequest.Request, error) {
	return s.request, s.err
}

type stubLiquidationService struct {
	record   liquidation.Record
	view     liquidation.View
	list     liquidation.ListResult
	applyErr error
	getErr   error
	bulkErr  error
}

func (s *stubLiquidationService) Open(_ context.Context, _ liquidation.OpenParams) (liquidation.Record, error) {
	return s.record, s.applyErr
}

func (s *stubLiquidationService) ApplyAction(_ context.Context, _ liquidation.ApplyParams) (liquidation.Record, error) {
	return s.record, s.applyErr
}

func (s *stubLiquidationService) Get(_ context.Context, _ string) (liquidation.View, error) {
	return s.view, s.getErr
}

func (s *stubLiquidationService) ListForActor(_ context.Context, _ liquidation.Actor, _ liquidation.Filters) (liquidation.ListResult, error) {
	return s.list, s.getErr
}

func (s *stubLiquidationService) BulkArchive(_ context.Context, _ []string) error {
	return s.bulkErr
}

func (s *stubLiquidationService) BulkRestore(_ context.Context, _ []string) error {
	return s.bulkErr
}

type stubReminderGate struct {
	digest reminder.Digest
	show   bool
	err    error
}

func (s *stubReminderGate) Evaluate(_ context.Context, _ auth.User) (reminder.Digest, bool, error) {
	return s.digest, s.show, s.err
}

type stubReportService struct {
	page     report.Page
	statuses []report.MonthStatus
	err      error
}

func (s *stubReportService) Aging(_ context.Context, _ report.Filter, _, _ int) (report.Page, error) {
	return s.page, s.err
}

func (s *stubReportService) Export(_ context.Context, filter report.Filter, format report.ExportFormat, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	if format == report.ExportCSV {
		_, err := w.Write([]byte("school_id\n"))
		return err
	}
	return nil
}

func (s *stubReportService) MonthStatuses(_ context.Context, _ string) ([]report.MonthStatus, error) {
	return s.statuses, s.err
}

func newTestServer() *Server {
	return &Server{logger: zap.NewNop()}
}

func withIdentity(r *http.Request, userID string, role auth.Role) *http.Request {
	ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return r.WithContext(ctx)
}

func TestHandleSchool_Success(t *testing.T) {
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	server := newTestServer()
	server.schoolService = &stubSchoolService{
		school: school.School{ID: "sch-1", Name: "Mabini Elementary", Code: "301234", District: "North", CreatedAt: now},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/schools/sch-1", nil)
	rec := httptest.NewRecorder()

	server.handleSchool(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp schoolResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "sch-1" || resp.Name != "Mabini Elementary" || resp.District != "North" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleSchool_NotFound(t *testing.T) {
	server := newTestServer()
	server.schoolService = &stubSchoolService{err: school.ErrNotFound}

	req := httptest.NewRequest(http.MethodGet, "/api/schools/missing", nil)
	rec := httptest.NewRecorder()

	server.handleSchool(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleListLiquidations_AgingPayload(t *testing.T) {
	days := 16
	remaining := 14
	server := newTestServer()
	server.liquidationService = &stubLiquidationService{
		list: liquidation.ListResult{
			Items: []liquidation.View{{
				Record: liquidation.Record{
					ID:              "rec-1",
					Status:          liquidation.StatusDraft,
					RequestedAmount: decimal.NewFromInt(5000),
				},
				DaysElapsed:   &days,
				RemainingDays: &remaining,
				Tier:          liquidation.TierWarning,
			}},
			Total: 1,
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/liquidations", nil)
	req = withIdentity(req, "u-district", auth.RoleDistrictAdmin)
	rec := httptest.NewRecorder()

	server.handleLiquidations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []liquidationResponse `json:"items"`
		Total int                   `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Total != 1 || len(payload.Items) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	item := payload.Items[0]
	if item.Tier != "WARNING" || item.DaysElapsed == nil || *item.DaysElapsed != 16 {
		t.Fatalf("aging fields not surfaced: %+v", item)
	}
	if item.RemainingDays == nil || *item.RemainingDays != 14 {
		t.Fatalf("remaining days not surfaced: %+v", item)
	}
}

func TestHandleLiquidationAction_InvalidTransition(t *testing.T) {
	server := newTestServer()
	server.liquidationService = &stubLiquidationService{
		applyErr: &liquidation.InvalidTransitionError{
			Status:  liquidation.StatusSubmitted,
			Action:  liquidation.ActionFinalize,
			Role:    auth.RoleDistrictAdmin,
			Allowed: liquidation.AllowedActions(liquidation.StatusSubmitted),
		},
	}

	body := strings.NewReader(`{"action":"finalize","expected_status":"submitted"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/liquidations/rec-1", body)
	req = withIdentity(req, "u-district", auth.RoleDistrictAdmin)
	rec := httptest.NewRecorder()

	server.handleLiquidationDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %q", resp.Code)
	}
	for _, want := range []string{"approve", "reject", "request-changes"} {
		if !strings.Contains(resp.Error, want) {
			t.Fatalf("allowed set missing %q: %s", want, resp.Error)
		}
	}
}

func TestHandleLiquidationAction_RoleDenied(t *testing.T) {
	server := newTestServer()
	server.liquidationService = &stubLiquidationService{
		applyErr: &liquidation.InvalidTransitionError{
			Status:     liquidation.StatusSubmitted,
			Action:     liquidation.ActionApprove,
			Role:       auth.RoleSchoolHead,
			Allowed:    liquidation.AllowedActions(liquidation.StatusSubmitted),
			RoleDenied: true,
		},
	}

	body := strings.NewReader(`{"action":"approve"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/liquidations/rec-1", body)
	req = withIdentity(req, "u-school", auth.RoleSchoolHead)
	rec := httptest.NewRecorder()

	server.handleLiquidationDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleLiquidationAction_StaleRead(t *testing.T) {
	server := newTestServer()
	server.liquidationService = &stubLiquidationService{applyErr: liquidation.ErrStaleRead}

	body := strings.NewReader(`{"action":"approve","expected_status":"submitted"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/liquidations/rec-1", body)
	req = withIdentity(req, "u-district", auth.RoleDistrictAdmin)
	rec := httptest.NewRecorder()

	server.handleLiquidationDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "stale_read" {
		t.Fatalf("expected stale_read code, got %q", resp.Code)
	}
}

func TestHandleBulkArchive_PartialFailure(t *testing.T) {
	server := newTestServer()
	server.liquidationService = &stubLiquidationService{
		bulkErr: &liquidation.PartialBatchError{
			Op:        "archive",
			Requested: 10,
			Succeeded: 7,
			Failed: []liquidation.BatchFailure{
				{ID: "rec-02", Err: errors.New("boom")},
				{ID: "rec-05", Err: errors.New("boom")},
				{ID: "rec-08", Err: errors.New("boom")},
			},
		},
	}

	body := strings.NewReader(`{"ids":["a","b","c","d","e","f","g","h","i","j"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/liquidations/bulk-archive", body)
	req = withIdentity(req, "u-admin", auth.RoleAdmin)
	rec := httptest.NewRecorder()

	server.handleBulkArchive(rec, req)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rec.Code)
	}
	var resp bulkResultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Requested != 10 || resp.Succeeded != 7 || len(resp.Failed) != 3 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.Failed[0].ID != "rec-02" {
		t.Fatalf("failures must keep stable order: %+v", resp.Failed)
	}
}

func TestHandleBulkArchive_ForbiddenRole(t *testing.T) {
	server := newTestServer()
	server.liquidationService = &stubLiquidationService{}

	body := strings.NewReader(`{"ids":["a"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/liquidations/bulk-archive", body)
	req = withIdentity(req, "u-school", auth.RoleSchoolHead)
	rec := httptest.NewRecorder()

	server.handleBulkArchive(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleOpenLiquidation_RequestNotApproved(t *testing.T) {
	server := newTestServer()
	server.fundRequestService = &stubFundRequestService{
		request: fundrequest.Request{ID: "req-1", SchoolID: "sch-1", Status: fundrequest.StatusPending},
	}
	server.liquidationService = &stubLiquidationService{}

	body := strings.NewReader(`{"request_id":"req-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/liquidations", body)
	req = withIdentity(req, "u-admin", auth.RoleAdmin)
	rec := httptest.NewRecorder()

	server.handleLiquidations(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleCreateFundRequest_ForbiddenRole(t *testing.T) {
	server := newTestServer()

	body := strings.NewReader(`{"month":"2025-06","purpose":"chairs","amount":"1000"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/fund-requests", body)
	req = withIdentity(req, "u-liq", auth.RoleLiquidator)
	rec := httptest.NewRecorder()

	server.handleFundRequests(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleReminder_Fires(t *testing.T) {
	schoolID := "sch-1"
	server := newTestServer()
	server.authService = &stubAuthService{
		user: &auth.User{ID: "u-1", Role: auth.RoleSchoolHead, SchoolID: &schoolID},
	}
	server.reminderGate = &stubReminderGate{
		show: true,
		digest: reminder.Digest{
			GeneratedOn: time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC),
			Items: []liquidation.View{
				{Record: liquidation.Record{ID: "rec-1", Status: liquidation.StatusDraft}, Tier: liquidation.TierOverdue},
			},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reminder", nil)
	req = withIdentity(req, "u-1", auth.RoleSchoolHead)
	rec := httptest.NewRecorder()

	server.handleReminder(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Show        bool                  `json:"show"`
		GeneratedOn string                `json:"generated_on"`
		Items       []liquidationResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Show || payload.GeneratedOn != "2025-06-10" || len(payload.Items) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleReminder_Suppressed(t *testing.T) {
	server := newTestServer()
	server.authService = &stubAuthService{user: &auth.User{ID: "u-1", Role: auth.RoleSchoolHead}}
	server.reminderGate = &stubReminderGate{show: false}

	req := httptest.NewRequest(http.MethodGet, "/api/reminder", nil)
	req = withIdentity(req, "u-1", auth.RoleSchoolHead)
	rec := httptest.NewRecorder()

	server.handleReminder(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Show bool `json:"show"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Show {
		t.Fatal("expected suppressed reminder")
	}
}

func TestHandleUnliquidatedSchools_JSON(t *testing.T) {
	server := newTestServer()
	server.reportService = &stubReportService{
		page: report.Page{
			Rows: []report.Row{{
				LiquidationID: "rec-1",
				SchoolID:      "sch-1",
				SchoolName:    "Mabini Elementary",
				DaysElapsed:   40,
				Bucket:        liquidation.Bucket31To60,
				Amount:        decimal.NewFromInt(5000),
			}},
			Summary:  report.Summary{Total: 1, Bucket31To60: 1},
			Page:     1,
			PageSize: 20,
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reports/unliquidated-schools?days=30", nil)
	req = withIdentity(req, "u-acct", auth.RoleDivisionAccountant)
	rec := httptest.NewRecorder()

	server.handleUnliquidatedSchools(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload agingReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Summary.Total != 1 || payload.Summary.Bucket31To60 != 1 {
		t.Fatalf("unexpected summary: %+v", payload.Summary)
	}
	if len(payload.Items) != 1 || payload.Items[0].Bucket != "31-60 days" {
		t.Fatalf("unexpected items: %+v", payload.Items)
	}
}

func TestHandleUnliquidatedSchools_CSVExport(t *testing.T) {
	server := newTestServer()
	server.reportService = &stubReportService{}

	req := httptest.NewRequest(http.MethodGet, "/api/reports/unliquidated-schools?days=all&export=csv", nil)
	req = withIdentity(req, "u-acct", auth.RoleDivisionAccountant)
	rec := httptest.NewRecorder()

	server.handleUnliquidatedSchools(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "school_id") {
		t.Fatalf("expected csv body, got %q", rec.Body.String())
	}
}

func TestHandleUnliquidatedSchools_InvalidDays(t *testing.T) {
	server := newTestServer()
	server.reportService = &stubReportService{}

	req := httptest.NewRequest(http.MethodGet, "/api/reports/unliquidated-schools?days=monthly", nil)
	req = withIdentity(req, "u-acct", auth.RoleDivisionAccountant)
	rec := httptest.NewRecorder()

	server.handleUnliquidatedSchools(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleUnliquidatedSchools_LegacyMonth(t *testing.T) {
	server := newTestServer()
	server.reportService = &stubReportService{
		statuses: []report.MonthStatus{
			{SchoolID: "sch-1", SchoolName: "Mabini Elementary", District: "North", HasUnliquidated: true},
			{SchoolID: "sch-2", SchoolName: "Rizal High", District: "South", HasUnliquidated: false},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reports/unliquidated-schools?month=2025-03", nil)
	req = withIdentity(req, "u-acct", auth.RoleDivisionAccountant)
	rec := httptest.NewRecorder()

	server.handleUnliquidatedSchools(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []monthStatusResponse `json:"items"`
		Month string                `json:"month"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Month != "2025-03" || len(payload.Items) != 2 || !payload.Items[0].HasUnliquidated {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	server := newTestServer()
	server.authService = &stubAuthService{user: &auth.User{ID: "u-1", Role: auth.RoleAdmin}}

	handler := server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/liquidations", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_PropagatesIdentity(t *testing.T) {
	server := newTestServer()
	server.authService = &stubAuthService{user: &auth.User{ID: "u-9", Role: auth.RoleLiquidator}}

	var gotUser string
	var gotRole auth.Role
	handler := server.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		gotUser = userIDFrom(r.Context())
		gotRole = roleFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/liquidations", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if gotUser != "u-9" || gotRole != auth.RoleLiquidator {
		t.Fatalf("identity not propagated: %s %s", gotUser, gotRole)
	}
}
