package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"consentwallet/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EventFilter narrows journal queries. Empty fields match everything.
type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
}

func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilter) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom returns events older than cursor, newest first.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// InsertOrphanTx records metadata left behind by a failed activation.
func (r Repo) InsertOrphanTx(ctx context.Context, tx *sql.Tx, o domain.OrphanedMetadata) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO orphaned_metadata(metadata_uuid,record_uuid,participant_uuid,reason,created_at) VALUES (?,?,?,?,?)
		ON CONFLICT(metadata_uuid) DO UPDATE SET reason=excluded.reason`,
		o.MetadataUUID, o.RecordUUID, o.ParticipantUUID, o.Reason, o.CreatedAt)
	return err
}

// ListOrphans returns orphaned metadata, optionally only unresolved entries.
func (r Repo) ListOrphans(ctx context.Context, recordUUID string, unresolvedOnly bool) ([]domain.OrphanedMetadata, error) {
	clauses := []string{"1=1"}
	var args []any
	if recordUUID != "" {
		clauses = append(clauses, "record_uuid=?")
		args = append(args, recordUUID)
	}
	if unresolvedOnly {
		clauses = append(clauses, "resolved_at IS NULL")
	}
	query := `SELECT metadata_uuid,record_uuid,participant_uuid,reason,created_at,resolved_at FROM orphaned_metadata WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrphanedMetadata
	for rows.Next() {
		var o domain.OrphanedMetadata
		var resolved sql.NullString
		if err := rows.Scan(&o.MetadataUUID, &o.RecordUUID, &o.ParticipantUUID, &o.Reason, &o.CreatedAt, &resolved); err != nil {
			return nil, err
		}
		if resolved.Valid {
			v := resolved.String
			o.ResolvedAt = &v
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ResolveOrphanTx marks orphaned metadata as cleaned up.
func (r Repo) ResolveOrphanTx(ctx context.Context, tx *sql.Tx, metadataUUID string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE orphaned_metadata SET resolved_at=? WHERE metadata_uuid=? AND resolved_at IS NULL`,
		at.UTC().Format(time.RFC3339), metadataUUID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
