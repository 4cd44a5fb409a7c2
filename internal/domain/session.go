package domain

import "time"

// Activity maps a human-readable activity name to its stable identifier.
// Entries are append-only: an activity is registered on first reference and
// never renamed or deleted.
type Activity struct {
	ID   int32
	Name string
}

// Subject is a best-effort directory entry for presentation. The journal
// never depends on it for correctness.
type Subject struct {
	ID    int64
	Label string
}

// Session is one contiguous interval of observed activity, identified by
// (SubjectID, StartTime). EndTime means "last confirmed still active", not a
// hard stop; it is the only field that changes after insert.
type Session struct {
	SubjectID  int64
	StartTime  time.Time
	EndTime    time.Time
	ActivityID int32
}

// ActivityHours is one row of a per-activity rollup.
type ActivityHours struct {
	Activity string  `json:"activity"`
	Hours    float64 `json:"hours"`
}

// SubjectHours is one row of a per-subject rollup.
type SubjectHours struct {
	SubjectID int64   `json:"subject_id"`
	Label     string  `json:"label"`
	Hours     float64 `json:"hours"`
}
