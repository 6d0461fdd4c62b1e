package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Journal event types.
const (
	TypeConsentAccepted      = "consent.accepted"
	TypeConsentDeclined      = "consent.declined"
	TypeUserDataCreated      = "user_data.created"
	TypeUserDataUpdated      = "user_data.updated"
	TypeUserDataDeleted      = "user_data.deleted"
	TypeUserDataOrphaned     = "user_data.orphaned"
	TypeTosAccepted          = "tos.accepted"
	TypeTosDeclined          = "tos.declined"
	TypeEnrolled             = "enroll.completed"
	TypeSessionStarted       = "session.started"
	TypeSessionEnded         = "session.ended"
	TypeContractViolation    = "error.contract_violation"
	TypeAuthenticationNeeded = "session.unauthorized"
)

// Entity kinds.
const (
	KindRecord      = "processing_record"
	KindParticipant = "processing_record_participant"
	KindMetadata    = "metadata"
	KindSession     = "session"
	KindEnroll      = "enroll"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event within tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "anonymous"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Record appends a single event in its own transaction.
func (w Writer) Record(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
