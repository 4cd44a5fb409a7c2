// Package domain implements the presence journal core: recording observed
// activity intervals and deriving time-spent rollups from them.
package domain

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/presence/internal/observability"
)

// DefaultRankingLimit bounds leaderboard and top-activity queries when the
// caller does not supply a limit.
const DefaultRankingLimit = 50

// Store captures the persistence operations the tracker depends on.
type Store interface {
	// ResolveActivity returns the identifier for the named activity,
	// registering it first if unseen. Concurrent resolvers of the same name
	// must converge on a single identifier.
	ResolveActivity(ctx context.Context, name string) (int32, error)
	// RememberSubject stores the label for an unseen subject and ignores the
	// write otherwise (first-seen label wins).
	RememberSubject(ctx context.Context, id int64, label string) error
	// UpsertSession inserts the session or, when the (subject, start) key
	// already exists, updates only its end time. The insert-or-extend
	// decision is atomic per key. Reports whether a new row was created.
	UpsertSession(ctx context.Context, session Session) (bool, error)

	SubjectBreakdown(ctx context.Context, subjectID int64) ([]ActivityHours, error)
	Leaderboard(ctx context.Context, since *time.Time, limit int) ([]SubjectHours, error)
	TopActivities(ctx context.Context, limit int) ([]ActivityHours, error)
}

// Option configures optional behaviour for the Tracker.
type Option func(*Tracker)

// WithLogger overrides the logger used for anomaly reporting.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides the wall-clock source used to default end times.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithDefaultLimit overrides the ranking limit applied when callers do not
// supply one. Non-positive values keep DefaultRankingLimit.
func WithDefaultLimit(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.defaultLimit = limit
		}
	}
}

// Tracker orchestrates journal writes and rollup reads over a Store.
type Tracker struct {
	store        Store
	logger       *log.Logger
	now          func() time.Time
	defaultLimit int
}

// NewTracker constructs a Tracker backed by the provided store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		logger:       log.New(log.Writer(), "[journal] ", log.LstdFlags),
		now:          time.Now,
		defaultLimit: DefaultRankingLimit,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordInput carries one normalized observation into the journal.
type RecordInput struct {
	SubjectID int64
	Activity  string
	StartTime time.Time
	// EndTime is nil for "still ongoing, last seen now".
	EndTime *time.Time
}

// Observation extends RecordInput with the presentation label reported by the
// event source.
type Observation struct {
	SubjectID int64
	Activity  string
	StartTime time.Time
	EndTime   *time.Time
	Label     string
}

// Record resolves the activity name and upserts the session keyed by
// (subject, start). A missing end time defaults to the current instant. An
// end before the start is accepted as clock-skewed source data; it is logged
// and counted, never rejected.
func (t *Tracker) Record(ctx context.Context, in RecordInput) error {
	activityID, err := t.store.ResolveActivity(ctx, in.Activity)
	if err != nil {
		return fmt.Errorf("resolve activity %q: %w", in.Activity, err)
	}

	end := t.now().UTC()
	if in.EndTime != nil {
		end = in.EndTime.UTC()
	}
	start := in.StartTime.UTC()

	if end.Before(start) {
		t.logger.Printf("clock skew: end precedes start by %s (subject=%d, activity=%q, start=%s, end=%s)",
			start.Sub(end), in.SubjectID, in.Activity, start.Format(time.RFC3339), end.Format(time.RFC3339))
		observability.RecordClockSkew()
	}

	inserted, err := t.store.UpsertSession(ctx, Session{
		SubjectID:  in.SubjectID,
		StartTime:  start,
		EndTime:    end,
		ActivityID: activityID,
	})
	if err != nil {
		return fmt.Errorf("upsert session (subject=%d, start=%s): %w", in.SubjectID, start.Format(time.RFC3339), err)
	}

	observability.RecordSessionWrite(inserted, end)
	return nil
}

// Observe records the observation and then refreshes the subject directory.
// A directory failure is logged and swallowed: the label cache is best
// effort and must never fail a journal write that already succeeded.
func (t *Tracker) Observe(ctx context.Context, obs Observation) error {
	if err := t.Record(ctx, RecordInput{
		SubjectID: obs.SubjectID,
		Activity:  obs.Activity,
		StartTime: obs.StartTime,
		EndTime:   obs.EndTime,
	}); err != nil {
		return err
	}

	if obs.Label == "" {
		return nil
	}
	if err := t.store.RememberSubject(ctx, obs.SubjectID, obs.Label); err != nil {
		t.logger.Printf("subject directory write failed (subject=%d): %v", obs.SubjectID, err)
	}
	return nil
}

// Breakdown returns per-activity hours for one subject, highest first. A
// subject with no history yields an empty, non-nil result.
func (t *Tracker) Breakdown(ctx context.Context, subjectID int64) ([]ActivityHours, error) {
	rows, err := t.store.SubjectBreakdown(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ActivityHours{}
	}
	return rows, nil
}

// Leaderboard returns total hours per subject across all activities, highest
// first, truncated to limit. A nil since spans the full history; otherwise
// only sessions starting at or after since are counted.
func (t *Tracker) Leaderboard(ctx context.Context, since *time.Time, limit int) ([]SubjectHours, error) {
	rows, err := t.store.Leaderboard(ctx, since, t.normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []SubjectHours{}
	}
	return rows, nil
}

// TopActivities returns total hours per activity across all subjects,
// highest first, truncated to limit.
func (t *Tracker) TopActivities(ctx context.Context, limit int) ([]ActivityHours, error) {
	rows, err := t.store.TopActivities(ctx, t.normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ActivityHours{}
	}
	return rows, nil
}

func (t *Tracker) normalizeLimit(limit int) int {
	if limit <= 0 {
		return t.defaultLimit
	}
	return limit
}
