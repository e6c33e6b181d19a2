package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope for everything published to a broker.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// SnapshotSavedEvent is emitted after the asset cache has been replaced.
type SnapshotSavedEvent struct {
	SavedTimestamp int64     `json:"saved_timestamp"`
	AssetCount     int       `json:"asset_count"`
	AssetIDs       []string  `json:"asset_ids,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	EventTypeSnapshotSaved = "asset.snapshot.saved"
	TopicSnapshotSaved     = "evt.asset.snapshot.saved.v1"
)

// NewSnapshotSavedEnvelope wraps a SnapshotSavedEvent in a canonical envelope.
func NewSnapshotSavedEnvelope(source string, evt SnapshotSavedEvent) (*Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         TopicSnapshotSaved,
		EventType:     EventTypeSnapshotSaved,
		Version:       "1.0.0",
		Source:        source,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}, nil
}
