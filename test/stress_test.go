package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"liquiflow/test/actors"
	"liquiflow/test/chaos"
	"liquiflow/test/infra"
	"liquiflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestLiquidationConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// openers and reviewers battling over the same fund request
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Opener(ctx2, pool, seedData.requestID, seedData.schoolID, stop)
		})
		g.Go(func() error {
			return actors.Reviewer(ctx2, pool, seedData.requestID, seedData.reviewerID, stop)
		})
	}

	// archive churn over closed cases
	g.Go(func() error { return actors.Archiver(ctx2, pool, stop) })
	// reminder flag upserts racing on one user
	g.Go(func() error { return actors.ReminderPoller(ctx2, pool, seedData.headID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	schoolID   string
	headID     string
	reviewerID string
	requestID  string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	// school
	if err := pool.QueryRow(ctx, `INSERT INTO schools (name, code, district) VALUES ($1,$2,'East District') RETURNING id`,
		fmt.Sprintf("Stress Elementary %d", rand.Int63()), fmt.Sprintf("SE-%d", rand.Int63())).Scan(&s.schoolID); err != nil {
		t.Fatalf("seed school: %v", err)
	}
	// school head
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role, school_id) VALUES ($1,'Stress Head','x','school_head',$2) RETURNING id`,
		fmt.Sprintf("head%d@example.com", rand.Int63()), s.schoolID).Scan(&s.headID); err != nil {
		t.Fatalf("seed head: %v", err)
	}
	// reviewer (division accountant acts at every stage in this harness)
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1,'Stress Reviewer','x','division_accountant') RETURNING id`,
		fmt.Sprintf("reviewer%d@example.com", rand.Int63())).Scan(&s.reviewerID); err != nil {
		t.Fatalf("seed reviewer: %v", err)
	}
	// approved fund request for the contested liquidation
	if err := pool.QueryRow(ctx, `INSERT INTO fund_requests (school_id, created_by_user_id, month, purpose, amount, status)
                                   VALUES ($1,$2,'2026-01','MOOE',1000,'approved') RETURNING id`,
		s.schoolID, s.headID).Scan(&s.requestID); err != nil {
		t.Fatalf("seed fund request: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"liquidations", `SELECT id, request_id, status, refund, archived, updated_at FROM liquidations ORDER BY updated_at DESC LIMIT 50`},
		{"fund_requests", `SELECT id, school_id, status, updated_at FROM fund_requests ORDER BY updated_at DESC LIMIT 50`},
		{"reminder_flags", `SELECT user_id, last_shown_on, updated_at FROM reminder_flags ORDER BY updated_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
