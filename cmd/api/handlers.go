package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"liquiflow/auth"
	"liquiflow/fundrequest"
	"liquiflow/liquidation"
	"liquiflow/report"
	"liquiflow/school"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "duplicate_email", "email already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleSchools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	schools, err := s.schoolService.List(r.Context(), r.URL.Query().Get("district"), limit)
	if err != nil {
		s.logger.Error("list schools failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	items := make([]schoolResponse, len(schools))
	for i, sch := range schools {
		items[i] = toSchoolResponse(sch)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleSchool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/schools/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "school id required")
		return
	}

	sch, err := s.schoolService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "school not found")
			return
		}
		s.logger.Error("get school failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSchoolResponse(sch))
}

func (s *Server) handleFundRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListFundRequests(w, r)
	case http.MethodPost:
		s.handleCreateFundRequest(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or POST")
	}
}

func (s *Server) handleListFundRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := fundrequest.Filters{
		SchoolID:  q.Get("school_id"),
		Status:    fundrequest.Status(q.Get("status")),
		Month:     q.Get("month"),
		SortKey:   q.Get("sort"),
		SortOrder: q.Get("order"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	// School heads only ever see their own school's requests.
	if roleFrom(r.Context()) == auth.RoleSchoolHead {
		user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r.Context()))
		if err != nil || user.SchoolID == nil {
			writeError(w, http.StatusForbidden, "forbidden", "no school binding")
			return
		}
		filters.SchoolID = *user.SchoolID
	}

	result, err := s.fundRequestService.List(r.Context(), filters)
	if err != nil {
		s.logger.Error("list fund requests failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	items := make([]fundRequestResponse, len(result.Items))
	for i, req := range result.Items {
		items[i] = toFundRequestResponse(req)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": result.Total})
}

func (s *Server) handleCreateFundRequest(w http.ResponseWriter, r *http.Request) {
	role := roleFrom(r.Context())
	if role != auth.RoleSchoolHead && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "only school heads may request funds")
		return
	}

	var body struct {
		SchoolID string          `json:"school_id"`
		Month    string          `json:"month"`
		Purpose  string          `json:"purpose"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	schoolID := body.SchoolID
	if role == auth.RoleSchoolHead {
		user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r.Context()))
		if err != nil || user.SchoolID == nil {
			writeError(w, http.StatusForbidden, "forbidden", "no school binding")
			return
		}
		schoolID = *user.SchoolID
	}

	req, err := s.fundRequestService.Create(r.Context(), fundrequest.CreateParams{
		SchoolID:        schoolID,
		CreatedByUserID: userIDFrom(r.Context()),
		Month:           body.Month,
		Purpose:         body.Purpose,
		Amount:          body.Amount,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toFundRequestResponse(req))
}

func (s *Server) handleFundRequestDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/fund-requests/")
	id, tail, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "fund request id required")
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		req, err := s.fundRequestService.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, fundrequest.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "fund request not found")
				return
			}
			s.logger.Error("get fund request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toFundRequestResponse(req))

	case tail == "review" && r.Method == http.MethodPost:
		s.handleReviewFundRequest(w, r, id)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method or path")
	}
}

func (s *Server) handleReviewFundRequest(w http.ResponseWriter, r *http.Request, id string) {
	role := roleFrom(r.Context())
	if role != auth.RoleDivisionAccountant && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "only the division accountant may review fund requests")
		return
	}

	var body struct {
		Approve bool    `json:"approve"`
		Reason  *string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	req, err := s.fundRequestService.Review(r.Context(), fundrequest.ReviewParams{
		RequestID:  id,
		ReviewerID: userIDFrom(r.Context()),
		Approve:    body.Approve,
		Reason:     body.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, fundrequest.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "fund request not found")
		case errors.Is(err, fundrequest.ErrReviewInvalidState):
			writeError(w, http.StatusConflict, "not_pending", "fund request is not pending review")
		default:
			s.logger.Error("review fund request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toFundRequestResponse(req))
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListLiquidations(w, r)
	case http.MethodPost:
		s.handleOpenLiquidation(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or POST")
	}
}

func (s *Server) handleListLiquidations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := liquidation.Filters{
		SchoolID:        q.Get("school_id"),
		RequestID:       q.Get("request_id"),
		IncludeArchived: q.Get("include_archived") == "true",
		SortKey:         q.Get("sort"),
		SortOrder:       q.Get("order"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	actor := liquidation.Actor{ID: userIDFrom(r.Context()), Role: roleFrom(r.Context())}
	if actor.Role == auth.RoleSchoolHead {
		user, err := s.authService.GetUserByID(r.Context(), actor.ID)
		if err != nil || user.SchoolID == nil {
			writeError(w, http.StatusForbidden, "forbidden", "no school binding")
			return
		}
		filters.SchoolID = *user.SchoolID
	}

	result, err := s.liquidationService.ListForActor(r.Context(), actor, filters)
	if err != nil {
		s.logger.Error("list liquidations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	items := make([]liquidationResponse, len(result.Items))
	for i, view := range result.Items {
		items[i] = toLiquidationResponse(view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": result.Total})
}

// handleOpenLiquidation converts an approved fund request into a draft
// liquidation case.
func (s *Server) handleOpenLiquidation(w http.ResponseWriter, r *http.Request) {
	role := roleFrom(r.Context())
	if role != auth.RoleSchoolHead && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "only school heads may open liquidations")
		return
	}

	var body struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	req, err := s.fundRequestService.Get(r.Context(), body.RequestID)
	if err != nil {
		if errors.Is(err, fundrequest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "fund request not found")
			return
		}
		s.logger.Error("load fund request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if req.Status != fundrequest.StatusApproved {
		writeError(w, http.StatusConflict, "request_not_approved", "fund request is not approved")
		return
	}

	if role == auth.RoleSchoolHead {
		user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r.Context()))
		if err != nil || user.SchoolID == nil || *user.SchoolID != req.SchoolID {
			writeError(w, http.StatusForbidden, "forbidden", "fund request belongs to another school")
			return
		}
	}

	rec, err := s.liquidationService.Open(r.Context(), liquidation.OpenParams{
		RequestID:       req.ID,
		SchoolID:        req.SchoolID,
		RequestedAmount: req.Amount,
	})
	if err != nil {
		s.writeLiquidationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLiquidationResponse(liquidation.View{Record: rec, Tier: liquidation.TierNormal}))
}

func (s *Server) handleLiquidationDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/liquidations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "liquidation id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		view, err := s.liquidationService.Get(r.Context(), id)
		if err != nil {
			s.writeLiquidationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLiquidationResponse(view))

	case http.MethodPatch:
		s.handleLiquidationAction(w, r, id)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or PATCH")
	}
}

func (s *Server) handleLiquidationAction(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Action           string          `json:"action"`
		ExpectedStatus   string          `json:"expected_status"`
		LiquidatedAmount decimal.Decimal `json:"liquidated_amount"`
		Remarks          *string         `json:"remarks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if body.Action == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "action required")
		return
	}

	rec, err := s.liquidationService.ApplyAction(r.Context(), liquidation.ApplyParams{
		ID:               id,
		Action:           liquidation.Action(body.Action),
		Actor:            liquidation.Actor{ID: userIDFrom(r.Context()), Role: roleFrom(r.Context())},
		ExpectedStatus:   liquidation.Status(body.ExpectedStatus),
		LiquidatedAmount: body.LiquidatedAmount,
		Remarks:          body.Remarks,
	})
	if err != nil {
		s.writeLiquidationError(w, err)
		return
	}

	view, err := s.liquidationService.Get(r.Context(), rec.ID)
	if err != nil {
		view = liquidation.View{Record: rec, Tier: liquidation.TierNormal}
	}
	writeJSON(w, http.StatusOK, toLiquidationResponse(view))
}

func (s *Server) handleBulkArchive(w http.ResponseWriter, r *http.Request) {
	s.handleBulk(w, r, s.liquidationService.BulkArchive)
}

func (s *Server) handleBulkRestore(w http.ResponseWriter, r *http.Request) {
	s.handleBulk(w, r, s.liquidationService.BulkRestore)
}

// handleBulk fans a batch out and reports per-item outcomes. The response is
// authoritative only per item: callers re-fetch the list instead of assuming
// local state.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, ids []string) error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST only")
		return
	}
	role := roleFrom(r.Context())
	if role != auth.RoleDivisionAccountant && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "bulk operations are reserved for division staff")
		return
	}

	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "ids required")
		return
	}

	if err := op(r.Context(), body.IDs); err != nil {
		s.writeLiquidationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bulkResultResponse{
		Requested: len(body.IDs),
		Succeeded: len(body.IDs),
		Failed:    []bulkFailureResponse{},
	})
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}

	digest, show, err := s.reminderGate.Evaluate(r.Context(), *user)
	if err != nil {
		s.logger.Error("reminder evaluation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	if !show {
		writeJSON(w, http.StatusOK, map[string]any{"show": false})
		return
	}

	items := make([]liquidationResponse, len(digest.Items))
	for i, view := range digest.Items {
		items[i] = toLiquidationResponse(view)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"show":         true,
		"generated_on": digest.GeneratedOn.Format("2006-01-02"),
		"items":        items,
	})
}

func (s *Server) handleUnliquidatedSchools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET only")
		return
	}

	q := r.URL.Query()

	// Legacy month variant: a flat per-school listing, no aging buckets.
	if month := q.Get("month"); month != "" {
		statuses, err := s.reportService.MonthStatuses(r.Context(), month)
		if err != nil {
			s.logger.Error("month report failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		items := make([]monthStatusResponse, len(statuses))
		for i, st := range statuses {
			items[i] = monthStatusResponse{
				SchoolID:        st.SchoolID,
				SchoolName:      st.SchoolName,
				District:        st.District,
				HasUnliquidated: st.HasUnliquidated,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "month": month})
		return
	}

	filter, err := report.ParseFilter(q.Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	switch q.Get("export") {
	case "":
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		result, err := s.reportService.Aging(r.Context(), filter, page, pageSize)
		if err != nil {
			s.logger.Error("aging report failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toAgingReportResponse(result))

	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="unliquidated-schools.csv"`)
		if err := s.reportService.Export(r.Context(), filter, report.ExportCSV, w); err != nil {
			s.logger.Error("csv export failed", zap.Error(err))
		}

	case "excel":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="unliquidated-schools.xlsx"`)
		if err := s.reportService.Export(r.Context(), filter, report.ExportExcel, w); err != nil {
			s.logger.Error("excel export failed", zap.Error(err))
		}

	default:
		writeError(w, http.StatusBadRequest, "bad_request", "export must be csv or excel")
	}
}
