// Package events carries venue events from the services to live
// subscribers, through Kafka or in process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventTypeUserCheckedIn  EventType = "user_checked_in"
	EventTypeUserCheckedOut EventType = "user_checked_out"
	EventTypeVoteCast       EventType = "vote_cast"
	EventTypeTrackSkipped   EventType = "track_skipped"
	EventTypeTrackChanged   EventType = "track_changed"
	EventTypeSongQueued     EventType = "song_queued"
)

type Event struct {
	Type      EventType       `json:"type"`
	VenueID   string          `json:"venue_id"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with payload encoded as JSON.
func NewEvent(typ EventType, venueID, userID string, payload any) (Event, error) {
	evt := Event{
		Type:      typ,
		VenueID:   venueID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal payload: %w", err)
		}
		evt.Payload = raw
	}
	return evt, nil
}

// Publisher is what the services depend on. KafkaClient and Local implement
// it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event payload types
type VoteCastPayload struct {
	Vote      int  `json:"vote"`
	VoteCount int  `json:"vote_count"`
	Skipped   bool `json:"skipped"`
}

type TrackChangedPayload struct {
	PreviousSongID string `json:"previous_song_id"`
	CurrentSongID  string `json:"current_song_id"`
}

type TrackSkippedPayload struct {
	SongID string `json:"song_id"`
}

type SongQueuedPayload struct {
	URI string `json:"uri"`
}

type AttendancePayload struct {
	AttendeeCount int `json:"attendee_count"`
}
