package liquidation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"liquiflow/auth"

	"github.com/shopspring/decimal"
)

// Status is the closed set of liquidation lifecycle states.
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusUnderReviewDistrict   Status = "under_review_district"
	StatusApprovedDistrict      Status = "approved_district"
	StatusUnderReviewLiquidator Status = "under_review_liquidator"
	StatusApprovedLiquidator    Status = "approved_liquidator"
	StatusUnderReviewDivision   Status = "under_review_division"
	StatusResubmit              Status = "resubmit"
	StatusLiquidated            Status = "liquidated"
	StatusRejected              Status = "rejected"
)

// Terminal reports whether the status ends the pipeline. Terminal records are
// retained for reporting, never hard-deleted.
func (s Status) Terminal() bool {
	return s == StatusLiquidated || s == StatusRejected
}

// ClockRunning reports whether the statutory window still counts against the
// submitting school. Downstream reviewer stages are not aged.
func (s Status) ClockRunning() bool {
	return s == StatusDraft || s == StatusResubmit
}

// Action is a lifecycle operation requested by an actor.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionApprove        Action = "approve"
	ActionRequestChanges Action = "request-changes"
	ActionReject         Action = "reject"
	ActionFinalize       Action = "finalize"
)

// Stage identifies a reviewing stage of the pipeline, in pipeline order.
type Stage int

const (
	StageDistrict Stage = iota
	StageLiquidator
	StageDivision
)

func (s Stage) String() string {
	switch s {
	case StageDistrict:
		return "district"
	case StageLiquidator:
		return "liquidator"
	case StageDivision:
		return "division"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Actor is the identity applying an action.
type Actor struct {
	ID   string
	Role auth.Role
}

// transitionKey addresses one cell of the transition table.
type transitionKey struct {
	from   Status
	action Action
}

// transitionRule is the target state plus the constraints attached to the edge.
type transitionRule struct {
	to    Status
	roles []auth.Role
	// stamp, when set, writes the review stamp for that stage on approval.
	stamp *Stage
	// clearFrom, when set, resets review stamps at and after that stage.
	clearFrom *Stage
}

func stagePtr(s Stage) *Stage { return &s }

// transitions is the full (state, action) -> rule table. Role legality lives on
// the edge so an illegal combination is a lookup miss, not a scattered string
// comparison.
var transitions = map[transitionKey]transitionRule{
	// School submission. Resubmission re-enters the same pipeline without
	// resetting the aging anchor.
	{StatusDraft, ActionSubmit}:    {to: StatusSubmitted, roles: []auth.Role{auth.RoleSchoolHead}},
	{StatusResubmit, ActionSubmit}: {to: StatusSubmitted, roles: []auth.Role{auth.RoleSchoolHead}},

	// District stage.
	{StatusSubmitted, ActionApprove}:                  {to: StatusUnderReviewDistrict, roles: []auth.Role{auth.RoleDistrictAdmin}},
	{StatusUnderReviewDistrict, ActionApprove}:        {to: StatusApprovedDistrict, roles: []auth.Role{auth.RoleDistrictAdmin}, stamp: stagePtr(StageDistrict)},
	{StatusSubmitted, ActionRequestChanges}:           {to: StatusResubmit, roles: []auth.Role{auth.RoleDistrictAdmin}, clearFrom: stagePtr(StageDistrict)},
	{StatusUnderReviewDistrict, ActionRequestChanges}: {to: StatusResubmit, roles: []auth.Role{auth.RoleDistrictAdmin}, clearFrom: stagePtr(StageDistrict)},
	{StatusSubmitted, ActionReject}:                   {to: StatusRejected, roles: []auth.Role{auth.RoleDistrictAdmin, auth.RoleAdmin}},
	{StatusUnderReviewDistrict, ActionReject}:         {to: StatusRejected, roles: []auth.Role{auth.RoleDistrictAdmin, auth.RoleAdmin}},

	// Liquidator stage.
	{StatusApprovedDistrict, ActionApprove}:             {to: StatusUnderReviewLiquidator, roles: []auth.Role{auth.RoleLiquidator}},
	{StatusUnderReviewLiquidator, ActionApprove}:        {to: StatusApprovedLiquidator, roles: []auth.Role{auth.RoleLiquidator}, stamp: stagePtr(StageLiquidator)},
	{StatusApprovedDistrict, ActionRequestChanges}:      {to: StatusResubmit, roles: []auth.Role{auth.RoleLiquidator}, clearFrom: stagePtr(StageLiquidator)},
	{StatusUnderReviewLiquidator, ActionRequestChanges}: {to: StatusResubmit, roles: []auth.Role{auth.RoleLiquidator}, clearFrom: stagePtr(StageLiquidator)},
	{StatusApprovedDistrict, ActionReject}:              {to: StatusRejected, roles: []auth.Role{auth.RoleLiquidator, auth.RoleAdmin}},
	{StatusUnderReviewLiquidator, ActionReject}:         {to: StatusRejected, roles: []auth.Role{auth.RoleLiquidator, auth.RoleAdmin}},

	// Division stage. Finalize is the only edge out of under_review_division
	// besides request-changes and reject.
	{StatusApprovedLiquidator, ActionApprove}:         {to: StatusUnderReviewDivision, roles: []auth.Role{auth.RoleDivisionAccountant}},
	{StatusApprovedLiquidator, ActionRequestChanges}:  {to: StatusResubmit, roles: []auth.Role{auth.RoleDivisionAccountant}, clearFrom: stagePtr(StageDivision)},
	{StatusUnderReviewDivision, ActionRequestChanges}: {to: StatusResubmit, roles: []auth.Role{auth.RoleDivisionAccountant}, clearFrom: stagePtr(StageDivision)},
	{StatusApprovedLiquidator, ActionReject}:          {to: StatusRejected, roles: []auth.Role{auth.RoleDivisionAccountant, auth.RoleAdmin}},
	{StatusUnderReviewDivision, ActionReject}:         {to: StatusRejected, roles: []auth.Role{auth.RoleDivisionAccountant, auth.RoleAdmin}},
	{StatusUnderReviewDivision, ActionFinalize}:       {to: StatusLiquidated, roles: []auth.Role{auth.RoleDivisionAccountant}, stamp: stagePtr(StageDivision)},

	// Drafts can be withdrawn by their school before entering review.
	{StatusDraft, ActionReject}:    {to: StatusRejected, roles: []auth.Role{auth.RoleSchoolHead, auth.RoleAdmin}},
	{StatusResubmit, ActionReject}: {to: StatusRejected, roles: []auth.Role{auth.RoleSchoolHead, auth.RoleAdmin}},
}

// InvalidTransitionError reports an illegal (state, action, role) combination.
// Its message names the current state, the attempted action, and the actions
// legal from that state; callers surface it verbatim.
type InvalidTransitionError struct {
	Status  Status
	Action  Action
	Role    auth.Role
	Allowed []Action
	// RoleDenied marks a combination whose (state, action) edge exists but is
	// reserved for a different role.
	RoleDenied bool
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		parts := make([]string, len(e.Allowed))
		for i, a := range e.Allowed {
			parts[i] = string(a)
		}
		allowed = strings.Join(parts, ", ")
	}
	if e.RoleDenied {
		return fmt.Sprintf("liquidation: role %s may not %s a record in status %s; allowed actions from %s: %s",
			e.Role, e.Action, e.Status, e.Status, allowed)
	}
	return fmt.Sprintf("liquidation: cannot %s a record in status %s; allowed actions from %s: %s",
		e.Action, e.Status, e.Status, allowed)
}

// AllowedActions lists the actions with an outgoing edge from the status,
// regardless of role, in stable order.
func AllowedActions(s Status) []Action {
	seen := map[Action]bool{}
	for key := range transitions {
		if key.from == s {
			seen[key.action] = true
		}
	}
	out := make([]Action, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ApplyInput carries the mutable figures an action may attach.
type ApplyInput struct {
	// LiquidatedAmount is required by finalize and ignored elsewhere.
	LiquidatedAmount decimal.Decimal
	Remarks          *string
}

// Apply runs one transition over a copy of the record. It is a pure function
// of (record, action, actor, now): stamping, stamp clearing, and the final
// refund computation all happen here, persistence happens in the service.
func Apply(rec Record, action Action, actor Actor, now time.Time, input ApplyInput) (Record, error) {
	rule, ok := transitions[transitionKey{rec.Status, action}]
	if !ok {
		return Record{}, &InvalidTransitionError{
			Status:  rec.Status,
			Action:  action,
			Role:    actor.Role,
			Allowed: AllowedActions(rec.Status),
		}
	}

	roleOK := false
	for _, r := range rule.roles {
		if r == actor.Role {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return Record{}, &InvalidTransitionError{
			Status:     rec.Status,
			Action:     action,
			Role:       actor.Role,
			Allowed:    AllowedActions(rec.Status),
			RoleDenied: true,
		}
	}

	next := rec
	next.Status = rule.to
	next.UpdatedAt = now

	if input.Remarks != nil {
		next.Remarks = input.Remarks
	}

	if rule.stamp != nil {
		next.setStamp(*rule.stamp, actor.ID, now)
	}
	if rule.clearFrom != nil {
		next.clearStampsFrom(*rule.clearFrom)
	}

	if action == ActionFinalize {
		if input.LiquidatedAmount.IsNegative() {
			return Record{}, fmt.Errorf("liquidation: negative liquidated amount")
		}
		next.LiquidatedAmount = input.LiquidatedAmount
		next.Refund = next.RequestedAmount.Sub(input.LiquidatedAmount)
		stamped := now
		next.DateLiquidated = &stamped
	}

	return next, nil
}

// setStamp writes a review stamp once per forward pass; a stamp already present
// for the stage is left untouched.
func (r *Record) setStamp(stage Stage, reviewer string, at time.Time) {
	if _, ok := r.Stamp(stage); ok {
		return
	}
	switch stage {
	case StageDistrict:
		r.DistrictReviewer, r.DistrictReviewedAt = &reviewer, &at
	case StageLiquidator:
		r.LiquidatorReviewer, r.LiquidatorReviewedAt = &reviewer, &at
	case StageDivision:
		r.DivisionReviewer, r.DivisionReviewedAt = &reviewer, &at
	}
}

// clearStampsFrom resets review stamps at and after the acting stage. The
// CreatedAt anchor is deliberately left alone: the statutory clock is tied to
// the original submission.
func (r *Record) clearStampsFrom(stage Stage) {
	if stage <= StageDistrict {
		r.DistrictReviewer, r.DistrictReviewedAt = nil, nil
	}
	if stage <= StageLiquidator {
		r.LiquidatorReviewer, r.LiquidatorReviewedAt = nil, nil
	}
	if stage <= StageDivision {
		r.DivisionReviewer, r.DivisionReviewedAt = nil, nil
	}
}
