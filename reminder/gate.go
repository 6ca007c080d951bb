package reminder

import (
	"context"
	"fmt"
	"time"

	"liquiflow/auth"
	"liquiflow/liquidation"
)

// Lister is the slice of the liquidation service the gate reads from.
type Lister interface {
	List(ctx context.Context, filters liquidation.Filters) (liquidation.ListResult, error)
}

// Gate decides, once per calendar day per user, whether to surface the
// aggregated urgency reminder. The store is injected so the decision stays a
// function of (user, today, store).
type Gate struct {
	store  Store
	lister Lister
	now    func() time.Time
}

func NewGate(store Store, lister Lister) *Gate {
	return &Gate{
		store:  store,
		lister: lister,
		now:    time.Now,
	}
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// ShouldRemind reports whether the reminder may fire for this user today.
// Only the submission-responsible role gets reminders, and at most once per
// UTC calendar day.
func ShouldRemind(role auth.Role, lastShown time.Time, hasLastShown bool, today time.Time) bool {
	if role != auth.RoleSchoolHead {
		return false
	}
	if !hasLastShown {
		return true
	}
	return !sameDay(lastShown, today)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Digest is the aggregate presented when the gate fires.
type Digest struct {
	Items       []liquidation.View
	GeneratedOn time.Time
}

// Evaluate runs the full gate for one user: suppression check, urgency scan,
// then mark-before-present. The flag is written before the digest is returned
// so a reload within the same day cannot re-trigger the reminder.
func (g *Gate) Evaluate(ctx context.Context, user auth.User) (Digest, bool, error) {
	today := g.now().UTC()

	lastShown, hasLastShown, err := g.store.LastShown(ctx, user.ID)
	if err != nil {
		return Digest{}, false, err
	}
	if !ShouldRemind(user.Role, lastShown, hasLastShown, today) {
		return Digest{}, false, nil
	}

	filters := liquidation.Filters{
		Statuses: []liquidation.Status{liquidation.StatusDraft, liquidation.StatusResubmit},
	}
	if user.SchoolID != nil {
		filters.SchoolID = *user.SchoolID
	}

	result, err := g.lister.List(ctx, filters)
	if err != nil {
		return Digest{}, false, fmt.Errorf("reminder: scan urgent records: %w", err)
	}

	urgent := make([]liquidation.View, 0, len(result.Items))
	for _, view := range result.Items {
		if view.Tier != liquidation.TierNormal {
			urgent = append(urgent, view)
		}
	}
	if len(urgent) == 0 {
		return Digest{}, false, nil
	}

	if err := g.store.MarkShown(ctx, user.ID, today); err != nil {
		return Digest{}, false, err
	}

	return Digest{Items: urgent, GeneratedOn: today}, true, nil
}
