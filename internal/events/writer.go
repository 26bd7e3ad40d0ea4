package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event types written by the engine.
const (
	WorkOrderCreated      = "workorder.created"
	WorkOrderTransitioned = "workorder.transitioned"
	WorkOrderScheduled    = "workorder.scheduled"
	WorkOrderDeleted      = "workorder.deleted"
	DraftCreated          = "draft.created"
	DraftPromoted         = "draft.promoted"
	DraftDeleted          = "draft.deleted"
	StoreSaved            = "store.saved"
	StoreDeleted          = "store.deleted"
	StoreConsumed         = "store.consumed"
	StoreBelowMinimum     = "store.below_minimum"
)

// Writer appends audit events inside the caller's transaction so an event
// exists iff the change it describes was committed.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind string, entityID int64, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "system"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullableID(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return strconv.FormatInt(id, 10)
}
