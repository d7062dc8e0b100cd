package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/webprobe/webprobe/internal/domain"
)

// setupTestDB starts a PostgreSQL container and returns a connected DB with
// the schema applied.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("webprobe_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := NewFromDSN(connStr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func sampleRun(runID string, completed time.Time) *domain.RunResult {
	run := &domain.RunResult{
		RunID:       runID,
		PlanID:      "plan-1",
		TargetURL:   "https://example.com",
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
		TestResults: []domain.TestResult{
			{TestID: "t1", Name: "homepage loads", Result: domain.ResultPass},
			{TestID: "t2", Name: "checkout succeeds", Result: domain.ResultFail, FailureReason: "timeout"},
		},
	}
	run.ComputeTotals()
	return run
}

func TestRunRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepository(db.DB)
	ctx := context.Background()

	run := sampleRun("run-1", time.Now())
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PlanID != "plan-1" || got.Totals.Failed != 1 || len(got.TestResults) != 2 {
		t.Errorf("round trip mismatch: %+v", got.Totals)
	}
	if got.TestResults[1].FailureReason != "timeout" {
		t.Errorf("nested result lost: %+v", got.TestResults[1])
	}
}

func TestRunRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepository(db.DB)

	_, err := repo.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestRunRepository_RecentAndPrevious(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRunRepository(db.DB)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := repo.Save(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
		// created_at ordering needs distinct insert times
		time.Sleep(20 * time.Millisecond)
	}

	recent, err := repo.Recent(ctx, "https://example.com", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].RunID != "run-c" || recent[1].RunID != "run-b" {
		t.Errorf("recent order wrong: %v", runIDs(recent))
	}

	prev, err := repo.Previous(ctx, "https://example.com", "run-c")
	if err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if prev.RunID != "run-b" {
		t.Errorf("previous = %s, want run-b", prev.RunID)
	}

	if _, err := repo.Previous(ctx, "https://other.example", "x"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("no-history err = %v, want ErrRunNotFound", err)
	}
}

func runIDs(runs []*domain.RunResult) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.RunID
	}
	return out
}
