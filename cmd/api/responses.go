package main

import (
	"time"

	"liquiflow/auth"
	"liquiflow/fundrequest"
	"liquiflow/liquidation"
	"liquiflow/report"
	"liquiflow/school"
)

type userResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Role      string  `json:"role"`
	SchoolID  *string `json:"school_id,omitempty"`
	District  *string `json:"district,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		SchoolID:  u.SchoolID,
		District:  u.District,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type schoolResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	District  string `json:"district"`
	CreatedAt string `json:"created_at"`
}

func toSchoolResponse(s school.School) schoolResponse {
	return schoolResponse{
		ID:        s.ID,
		Name:      s.Name,
		Code:      s.Code,
		District:  s.District,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

type fundRequestResponse struct {
	ID           string  `json:"id"`
	SchoolID     string  `json:"school_id"`
	CreatedBy    string  `json:"created_by"`
	Month        string  `json:"month"`
	Purpose      string  `json:"purpose"`
	Amount       string  `json:"amount"`
	Status       string  `json:"status"`
	RejectReason *string `json:"reject_reason,omitempty"`
	ReviewedBy   *string `json:"reviewed_by,omitempty"`
	ReviewedAt   *string `json:"reviewed_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toFundRequestResponse(req fundrequest.Request) fundRequestResponse {
	return fundRequestResponse{
		ID:           req.ID,
		SchoolID:     req.SchoolID,
		CreatedBy:    req.CreatedByUserID,
		Month:        req.Month,
		Purpose:      req.Purpose,
		Amount:       req.Amount.StringFixed(2),
		Status:       string(req.Status),
		RejectReason: req.RejectReason,
		ReviewedBy:   req.ReviewedBy,
		ReviewedAt:   formatTimePtr(req.ReviewedAt),
		CreatedAt:    req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    req.UpdatedAt.Format(time.RFC3339),
	}
}

type reviewStampResponse struct {
	Reviewer   string `json:"reviewer"`
	ReviewedAt string `json:"reviewed_at"`
}

type liquidationResponse struct {
	ID                string   `json:"id"`
	RequestID         string   `json:"request_id"`
	SchoolID          string   `json:"school_id"`
	Status            string   `json:"status"`
	RequestedAmount   string   `json:"requested_amount"`
	LiquidatedAmount  string   `json:"liquidated_amount"`
	Refund            string   `json:"refund"`
	Outcome           *string  `json:"outcome,omitempty"`
	Remarks           *string  `json:"remarks,omitempty"`
	Tier              string   `json:"tier"`
	DaysElapsed       *int     `json:"days_elapsed"`
	RemainingDays     *int     `json:"remaining_days"`
	DemandLetterReady bool     `json:"demand_letter_ready"`
	AllowedActions    []string `json:"allowed_actions"`
	Archived          bool     `json:"archived"`

	DistrictReview   *reviewStampResponse `json:"district_review,omitempty"`
	LiquidatorReview *reviewStampResponse `json:"liquidator_review,omitempty"`
	DivisionReview   *reviewStampResponse `json:"division_review,omitempty"`

	DateLiquidated *string `json:"date_liquidated,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toLiquidationResponse(view liquidation.View) liquidationResponse {
	actions := liquidation.AllowedActions(view.Status)
	allowed := make([]string, len(actions))
	for i, a := range actions {
		allowed[i] = string(a)
	}

	resp := liquidationResponse{
		ID:               view.ID,
		RequestID:        view.RequestID,
		SchoolID:         view.SchoolID,
		Status:           string(view.Status),
		RequestedAmount:  view.RequestedAmount.StringFixed(2),
		LiquidatedAmount: view.LiquidatedAmount.StringFixed(2),
		Refund:           view.Refund.StringFixed(2),
		Remarks:          view.Remarks,
		Tier:             string(view.Tier),
		DaysElapsed:      view.DaysElapsed,
		RemainingDays:    view.RemainingDays,
		AllowedActions:   allowed,
		Archived:         view.Archived,
		DateLiquidated:   formatTimePtr(view.DateLiquidated),
		CreatedAt:        view.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        view.UpdatedAt.Format(time.RFC3339),
	}

	if view.DaysElapsed != nil {
		resp.DemandLetterReady = liquidation.DemandLetterReady(*view.DaysElapsed)
	}
	if view.Status == liquidation.StatusLiquidated {
		outcome := string(liquidation.OutcomeFor(view.Refund))
		resp.Outcome = &outcome
	}
	resp.DistrictReview = stampResponse(view.Record, liquidation.StageDistrict)
	resp.LiquidatorReview = stampResponse(view.Record, liquidation.StageLiquidator)
	resp.DivisionReview = stampResponse(view.Record, liquidation.StageDivision)

	return resp
}

func stampResponse(rec liquidation.Record, stage liquidation.Stage) *reviewStampResponse {
	stamp, ok := rec.Stamp(stage)
	if !ok {
		return nil
	}
	return &reviewStampResponse{
		Reviewer:   stamp.Reviewer,
		ReviewedAt: stamp.ReviewedAt.Format(time.RFC3339),
	}
}

type bulkFailureResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type bulkResultResponse struct {
	Requested int                   `json:"requested"`
	Succeeded int                   `json:"succeeded"`
	Failed    []bulkFailureResponse `json:"failed"`
}

func bulkResponse(e *liquidation.PartialBatchError) bulkResultResponse {
	failed := make([]bulkFailureResponse, len(e.Failed))
	for i, f := range e.Failed {
		failed[i] = bulkFailureResponse{ID: f.ID, Error: f.Err.Error()}
	}
	return bulkResultResponse{
		Requested: e.Requested,
		Succeeded: e.Succeeded,
		Failed:    failed,
	}
}

type agingRowResponse struct {
	LiquidationID     string `json:"liquidation_id"`
	RequestID         string `json:"request_id"`
	SchoolID          string `json:"school_id"`
	SchoolName        string `json:"school_name"`
	District          string `json:"district"`
	Month             string `json:"month"`
	AnchorDate        string `json:"anchor_date"`
	DaysElapsed       int    `json:"days_elapsed"`
	Bucket            string `json:"aging_bucket"`
	Amount            string `json:"amount"`
	DemandLetterReady bool   `json:"demand_letter_ready"`
}

type agingSummaryResponse struct {
	Total             int `json:"total"`
	DemandLetterReady int `json:"demand_letter_ready"`
	Bucket31To60      int `json:"bucket_31_60"`
	Bucket61To90      int `json:"bucket_61_90"`
	Bucket91Plus      int `json:"bucket_91_plus"`
}

type agingReportResponse struct {
	Items    []agingRowResponse   `json:"items"`
	Summary  agingSummaryResponse `json:"summary"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

func toAgingReportResponse(page report.Page) agingReportResponse {
	items := make([]agingRowResponse, len(page.Rows))
	for i, row := range page.Rows {
		items[i] = agingRowResponse{
			LiquidationID:     row.LiquidationID,
			RequestID:         row.RequestID,
			SchoolID:          row.SchoolID,
			SchoolName:        row.SchoolName,
			District:          row.District,
			Month:             row.Month,
			AnchorDate:        row.Anchor.UTC().Format("2006-01-02"),
			DaysElapsed:       row.DaysElapsed,
			Bucket:            string(row.Bucket),
			Amount:            row.Amount.StringFixed(2),
			DemandLetterReady: row.DemandLetterReady,
		}
	}
	return agingReportResponse{
		Items: items,
		Summary: agingSummaryResponse{
			Total:             page.Summary.Total,
			DemandLetterReady: page.Summary.DemandLetterReady,
			Bucket31To60:      page.Summary.Bucket31To60,
			Bucket61To90:      page.Summary.Bucket61To90,
			Bucket91Plus:      page.Summary.Bucket91Plus,
		},
		Page:     page.Page,
		PageSize: page.PageSize,
	}
}

type monthStatusResponse struct {
	SchoolID        string `json:"school_id"`
	SchoolName      string `json:"school_name"`
	District        string `json:"district"`
	HasUnliquidated bool   `json:"has_unliquidated"`
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
