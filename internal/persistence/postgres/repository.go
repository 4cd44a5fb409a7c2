// Package postgres provides the Postgres-backed session journal and lookups.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/presence/internal/domain"
)

// Repository implements domain.Store on top of a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResolveActivity returns the identifier for name, inserting it on first
// reference. The no-op conflict update makes RETURNING yield the existing id,
// so concurrent resolvers of one name converge without a retry loop.
func (r *Repository) ResolveActivity(ctx context.Context, name string) (int32, error) {
	const stmt = `INSERT INTO activities (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id`

	var id int32
	if err := r.pool.QueryRow(ctx, stmt, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// RememberSubject stores the label for an unseen subject; an existing entry
// is left untouched so the first-seen label wins.
func (r *Repository) RememberSubject(ctx context.Context, id int64, label string) error {
	const stmt = `INSERT INTO subjects (subject_id, label) VALUES ($1, $2)
        ON CONFLICT (subject_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, stmt, id, label)
	return err
}

// UpsertSession inserts the session or extends the end time of the row
// already holding its (subject_id, start_time) key. The conflict branch
// deliberately writes only end_time: start and activity are immutable once
// the key exists. xmax = 0 distinguishes a fresh insert from an extend.
func (r *Repository) UpsertSession(ctx context.Context, session domain.Session) (bool, error) {
	const stmt = `INSERT INTO sessions (subject_id, start_time, end_time, activity_id)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (subject_id, start_time) DO UPDATE SET end_time = EXCLUDED.end_time
        RETURNING (xmax = 0)`

	var inserted bool
	err := r.pool.QueryRow(ctx, stmt,
		session.SubjectID,
		session.StartTime,
		session.EndTime,
		session.ActivityID,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// SubjectBreakdown sums session durations per activity for one subject,
// in hours rounded to one decimal, highest first.
func (r *Repository) SubjectBreakdown(ctx context.Context, subjectID int64) ([]domain.ActivityHours, error) {
	const query = `SELECT a.name,
            ROUND((SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time))) / 3600.0)::numeric, 1)::float8 AS total
        FROM sessions s
        JOIN activities a ON a.id = s.activity_id
        WHERE s.subject_id = $1
        GROUP BY a.name
        ORDER BY total DESC`

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityHours, 0)
	for rows.Next() {
		var row domain.ActivityHours
		if err := rows.Scan(&row.Activity, &row.Hours); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Leaderboard sums session durations per subject across all activities,
// highest first, truncated to limit. A non-nil since restricts the rollup to
// sessions starting at or after that instant. Subjects missing from the
// directory rank with an empty label.
func (r *Repository) Leaderboard(ctx context.Context, since *time.Time, limit int) ([]domain.SubjectHours, error) {
	query := `SELECT s.subject_id, COALESCE(d.label, ''),
            ROUND((SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time))) / 3600.0)::numeric, 1)::float8 AS total
        FROM sessions s
        LEFT JOIN subjects d ON d.subject_id = s.subject_id`
	args := []interface{}{limit}

	if since != nil {
		query += ` WHERE s.start_time >= $2`
		args = append(args, *since)
	}
	query += ` GROUP BY s.subject_id, d.label ORDER BY total DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.SubjectHours, 0, limit)
	for rows.Next() {
		var row domain.SubjectHours
		if err := rows.Scan(&row.SubjectID, &row.Label, &row.Hours); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// TopActivities sums session durations per activity across all subjects, in
// whole hours, highest first, truncated to limit.
func (r *Repository) TopActivities(ctx context.Context, limit int) ([]domain.ActivityHours, error) {
	const query = `SELECT a.name,
            ROUND((SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time))) / 3600.0)::numeric)::float8 AS total
        FROM sessions s
        JOIN activities a ON a.id = s.activity_id
        GROUP BY a.name
        ORDER BY total DESC
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityHours, 0, limit)
	for rows.Next() {
		var row domain.ActivityHours
		if err := rows.Scan(&row.Activity, &row.Hours); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
