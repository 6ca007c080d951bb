package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_open_case_per_request",
			SQL: `SELECT request_id, COUNT(*) FROM liquidations
                  WHERE status NOT IN ('liquidated','rejected')
                  GROUP BY request_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_refund_arithmetic",
			SQL: `SELECT id, requested_amount, liquidated_amount, refund FROM liquidations
                  WHERE status = 'liquidated'
                  AND refund <> requested_amount - liquidated_amount`,
		},
		{
			Name: "O3_date_liquidated_presence",
			SQL: `SELECT id, status, date_liquidated FROM liquidations
                  WHERE (status = 'liquidated') <> (date_liquidated IS NOT NULL)`,
		},
		{
			Name: "O4_stamp_order",
			SQL: `SELECT id FROM liquidations
                  WHERE (district_reviewed_at IS NOT NULL AND liquidator_reviewed_at IS NOT NULL
                         AND liquidator_reviewed_at < district_reviewed_at)
                     OR (liquidator_reviewed_at IS NOT NULL AND division_reviewed_at IS NOT NULL
                         AND division_reviewed_at < liquidator_reviewed_at)`,
		},
		{
			Name: "O5_stamp_stage_consistency",
			SQL: `SELECT id FROM liquidations
                  WHERE (district_reviewer IS NULL) <> (district_reviewed_at IS NULL)
                     OR (liquidator_reviewer IS NULL) <> (liquidator_reviewed_at IS NULL)
                     OR (division_reviewer IS NULL) <> (division_reviewed_at IS NULL)`,
		},
		{
			Name: "O6_request_settled_on_finalize",
			SQL: `SELECT fr.id FROM fund_requests fr
                  WHERE fr.status = 'liquidated'
                  AND NOT EXISTS (SELECT 1 FROM liquidations l
                                  WHERE l.request_id = fr.id AND l.status = 'liquidated')`,
		},
		{
			Name: "O7_reminder_flag_not_future",
			SQL:  `SELECT user_id, last_shown_on FROM reminder_flags WHERE last_shown_on > now()::date`,
		},
		{
			Name: "O8_amounts_non_negative",
			SQL: `SELECT id FROM liquidations
                  WHERE requested_amount < 0 OR liquidated_amount < 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
