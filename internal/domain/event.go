package domain

// Event is one entry of the local journal.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

// OrphanedMetadata is user-provided data that was created but whose
// participant activation failed afterwards.
type OrphanedMetadata struct {
	MetadataUUID    string  `json:"metadata_uuid"`
	RecordUUID      string  `json:"record_uuid"`
	ParticipantUUID string  `json:"participant_uuid"`
	Reason          string  `json:"reason"`
	CreatedAt       string  `json:"created_at"`
	ResolvedAt      *string `json:"resolved_at,omitempty"`
}
