package consumer

import (
	"context"

	"example.com/presence/internal/domain"
)

// JournalHandler feeds normalized observations into the presence tracker.
type JournalHandler struct {
	tracker *domain.Tracker
}

// NewJournalHandler constructs a handler backed by the provided tracker.
func NewJournalHandler(tracker *domain.Tracker) *JournalHandler {
	return &JournalHandler{tracker: tracker}
}

// Handle records the observation and refreshes the subject directory.
func (h *JournalHandler) Handle(ctx context.Context, obs domain.Observation) error {
	return h.tracker.Observe(ctx, obs)
}
