package consumer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"example.com/presence/internal/domain"
	"example.com/presence/pkg/events"
)

// decodeObservation validates a raw Kafka message and normalizes its payload
// into a journal observation. The event_type header selects one of the three
// payload variants; anything else is rejected before reaching the core.
func decodeObservation(msg kafka.Message) (domain.Observation, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return domain.Observation{}, errors.New("missing event_type header")
	}

	switch string(eventType) {
	case events.TypeObservationStarted:
		var payload events.ObservationStarted
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			return domain.Observation{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if payload.SubjectID <= 0 {
			return domain.Observation{}, errors.New("missing subject_id")
		}
		if payload.Activity == "" {
			return domain.Observation{}, errors.New("missing activity")
		}
		if payload.StartedAt.IsZero() {
			return domain.Observation{}, errors.New("missing started_at")
		}
		return domain.Observation{
			SubjectID: payload.SubjectID,
			Activity:  payload.Activity,
			StartTime: payload.StartedAt,
			Label:     payload.Label,
		}, nil

	case events.TypeObservationHeartbeat:
		var payload events.ObservationHeartbeat
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			return domain.Observation{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if payload.SubjectID <= 0 {
			return domain.Observation{}, errors.New("missing subject_id")
		}
		if payload.Activity == "" {
			return domain.Observation{}, errors.New("missing activity")
		}
		if payload.StartedAt.IsZero() {
			return domain.Observation{}, errors.New("missing started_at")
		}
		obs := domain.Observation{
			SubjectID: payload.SubjectID,
			Activity:  payload.Activity,
			StartTime: payload.StartedAt,
			Label:     payload.Label,
		}
		// A heartbeat without seen_at still extends: "last seen now".
		if !payload.SeenAt.IsZero() {
			seen := payload.SeenAt
			obs.EndTime = &seen
		}
		return obs, nil

	case events.TypeObservationEnded:
		var payload events.ObservationEnded
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			return domain.Observation{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if payload.SubjectID <= 0 {
			return domain.Observation{}, errors.New("missing subject_id")
		}
		if payload.Activity == "" {
			return domain.Observation{}, errors.New("missing activity")
		}
		if payload.EndedAt.IsZero() {
			return domain.Observation{}, errors.New("missing ended_at")
		}
		// An end without a recorded start becomes a zero-length session
		// anchored at the end instant.
		start := payload.EndedAt
		if payload.StartedAt != nil && !payload.StartedAt.IsZero() {
			start = *payload.StartedAt
		}
		end := payload.EndedAt
		return domain.Observation{
			SubjectID: payload.SubjectID,
			Activity:  payload.Activity,
			StartTime: start,
			EndTime:   &end,
			Label:     payload.Label,
		}, nil

	default:
		return domain.Observation{}, fmt.Errorf("unknown event type: %s", eventType)
	}
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
