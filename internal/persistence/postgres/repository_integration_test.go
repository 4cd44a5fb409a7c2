//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/presence/internal/domain"
)

func TestUpsertSessionExtendsInPlace(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	activityID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)

	subject := int64(1001)
	start := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)

	inserted, err := repo.UpsertSession(ctx, domain.Session{
		SubjectID:  subject,
		StartTime:  start,
		EndTime:    start.Add(10 * time.Minute),
		ActivityID: activityID,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID:  subject,
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		ActivityID: activityID,
	})
	require.NoError(t, err)
	require.False(t, inserted, "repeated key must extend, not insert")

	var count int
	var end time.Time
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(end_time) FROM sessions WHERE subject_id=$1 AND start_time=$2`,
		subject, start).Scan(&count, &end))
	require.Equal(t, 1, count)
	require.True(t, end.Equal(start.Add(30*time.Minute)))
}

func TestUpsertSessionKeyIsImmutable(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	chessID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)
	otherID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)

	subject := int64(1002)
	start := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)

	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: subject, StartTime: start, EndTime: start.Add(time.Minute), ActivityID: chessID,
	})
	require.NoError(t, err)

	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: subject, StartTime: start, EndTime: start.Add(2 * time.Minute), ActivityID: otherID,
	})
	require.NoError(t, err)

	var storedActivity int32
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT activity_id FROM sessions WHERE subject_id=$1 AND start_time=$2`,
		subject, start).Scan(&storedActivity))
	require.Equal(t, chessID, storedActivity, "activity is fixed at session creation")
}

func TestUpsertSessionConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	activityID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)

	subject := int64(1003)
	start := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpsertSession(ctx, domain.Session{
				SubjectID:  subject,
				StartTime:  start,
				EndTime:    start.Add(time.Duration(i+1) * time.Minute),
				ActivityID: activityID,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE subject_id=$1 AND start_time=$2`,
		subject, start).Scan(&count))
	require.Equal(t, 1, count, "concurrent records for one key must never produce two rows")
}

func TestResolveActivityConcurrentSameName(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	name := uniqueActivity()

	type result struct {
		id  int32
		err error
	}

	const resolvers = 8
	results := make(chan result, resolvers)
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := repo.ResolveActivity(ctx, name)
			results <- result{id: id, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var first int32
	for res := range results {
		require.NoError(t, res.err)
		if first == 0 {
			first = res.id
		}
		require.Equal(t, first, res.id, "one name must resolve to one identifier")
	}
}

func TestRememberSubjectFirstLabelWins(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	subject := int64(1004)
	require.NoError(t, repo.RememberSubject(ctx, subject, "Alice"))
	require.NoError(t, repo.RememberSubject(ctx, subject, "Alicia"))

	var label string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT label FROM subjects WHERE subject_id=$1`, subject).Scan(&label))
	require.Equal(t, "Alice", label)
}

func TestClockSkewedSessionIsStored(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	activityID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)

	subject := int64(1005)
	start := time.Unix(100, 0).UTC()
	end := time.Unix(50, 0).UTC()

	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: subject, StartTime: start, EndTime: end, ActivityID: activityID,
	})
	require.NoError(t, err, "skewed data is best-effort, never rejected")

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE subject_id=$1`, subject).Scan(&count))
	require.Equal(t, 1, count)
}

func TestSubjectBreakdownHours(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	chess := uniqueActivity()
	chessID, err := repo.ResolveActivity(ctx, chess)
	require.NoError(t, err)

	subject := int64(1006)
	start := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: subject, StartTime: start, EndTime: start.Add(time.Hour), ActivityID: chessID,
	})
	require.NoError(t, err)

	rows, err := repo.SubjectBreakdown(ctx, subject)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, chess, rows[0].Activity)
	require.Equal(t, 1.0, rows[0].Hours)
}

func TestSubjectBreakdownEmpty(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	rows, err := repo.SubjectBreakdown(ctx, 999999)
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func TestLeaderboardRanksAndTruncates(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	activityID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)

	base := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		subject := int64(200000 + i)
		require.NoError(t, repo.RememberSubject(ctx, subject, fmt.Sprintf("subject-%d", i)))
		_, err := repo.UpsertSession(ctx, domain.Session{
			SubjectID:  subject,
			StartTime:  base,
			EndTime:    base.Add(time.Duration(i+1) * time.Hour),
			ActivityID: activityID,
		})
		require.NoError(t, err)
	}

	rows, err := repo.Leaderboard(ctx, nil, 50)
	require.NoError(t, err)
	require.Len(t, rows, 50)
	for i := 1; i < len(rows); i++ {
		require.GreaterOrEqual(t, rows[i-1].Hours, rows[i].Hours, "leaderboard must be sorted descending")
	}
	require.Equal(t, int64(200059), rows[0].SubjectID)
	require.Equal(t, "subject-59", rows[0].Label)
	require.Equal(t, 60.0, rows[0].Hours)
}

func TestLeaderboardWindowFiltersOldSessions(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	activityID, err := repo.ResolveActivity(ctx, uniqueActivity())
	require.NoError(t, err)

	subject := int64(1007)
	old := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: subject, StartTime: old, EndTime: old.Add(10 * time.Hour), ActivityID: activityID,
	})
	require.NoError(t, err)
	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: subject, StartTime: recent, EndTime: recent.Add(2 * time.Hour), ActivityID: activityID,
	})
	require.NoError(t, err)

	cutoff := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	rows, err := repo.Leaderboard(ctx, &cutoff, 50)
	require.NoError(t, err)

	var hours float64
	for _, row := range rows {
		if row.SubjectID == subject {
			hours = row.Hours
		}
	}
	require.Equal(t, 2.0, hours, "sessions before the window must not count")
}

func TestTopActivitiesWholeHours(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	name := uniqueActivity()
	activityID, err := repo.ResolveActivity(ctx, name)
	require.NoError(t, err)

	start := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	_, err = repo.UpsertSession(ctx, domain.Session{
		SubjectID: 1008, StartTime: start, EndTime: start.Add(90 * time.Minute), ActivityID: activityID,
	})
	require.NoError(t, err)

	rows, err := repo.TopActivities(ctx, 200)
	require.NoError(t, err)

	var hours float64
	found := false
	for _, row := range rows {
		if row.Activity == name {
			hours = row.Hours
			found = true
		}
	}
	require.True(t, found)
	require.Equal(t, 2.0, hours, "90 minutes rounds to 2 whole hours")
}

var (
	sharedOnce sync.Once
	sharedPool *pgxpool.Pool
	sharedErr  error
)

// setupRepository spins up one Postgres container for the whole package and
// returns a repository bound to it. Tests use disjoint subject ids and
// activity names, so sharing the database is safe.
func setupRepository(t *testing.T, ctx context.Context) (*Repository, *pgxpool.Pool) {
	t.Helper()

	sharedOnce.Do(func() {
		pg, err := postgrescontainer.RunContainer(ctx,
			postgrescontainer.WithDatabase("presence"),
			postgrescontainer.WithUsername("presence"),
			postgrescontainer.WithPassword("presence"),
		)
		if err != nil {
			sharedErr = err
			return
		}

		connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedErr = err
			return
		}
		if err := waitForDatabase(ctx, connStr); err != nil {
			sharedErr = err
			return
		}
		if err := runMigrations(ctx, connStr); err != nil {
			sharedErr = err
			return
		}

		sharedPool, sharedErr = pgxpool.New(ctx, connStr)
	})
	require.NoError(t, sharedErr)
	require.NotNil(t, sharedPool)

	return NewRepository(sharedPool), sharedPool
}

func runMigrations(ctx context.Context, connStr string) error {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return err
	}
	defer pool.Close()

	path := resolvePath("../../../db/postgres/migrations/0001_init.up.sql")
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, string(contents))
	return err
}

func resolvePath(rel string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func uniqueActivity() string {
	return "activity-" + uuid.NewString()
}
