package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"maintline/internal/daterange"
	"maintline/internal/domain"
	"maintline/internal/events"
	"maintline/internal/repo"
	"maintline/internal/telemetry"
	"maintline/internal/workflow"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Calendar daterange.Calendar
	Log      zerolog.Logger
	Metrics  *telemetry.Metrics
	Tracer   *telemetry.Tracer
	Now      func() time.Time
}

func New(db *sql.DB, cal daterange.Calendar) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{},
		Calendar: cal,
		Log:      zerolog.Nop(),
		Now:      time.Now,
	}
}

// now is truncated to the storage precision so values read back compare equal.
func (e Engine) now() time.Time {
	n := time.Now
	if e.Now != nil {
		n = e.Now
	}
	return n().UTC().Truncate(time.Second)
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind string, entityID int64, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// annotate fills the derived nextState of a read model.
func annotate(w domain.WorkOrder) domain.WorkOrder {
	if next, ok := workflow.Next(w.State); ok {
		w.NextState = &next
	} else {
		w.NextState = nil
	}
	return w
}

func annotateAll(list []domain.WorkOrder) []domain.WorkOrder {
	for i := range list {
		list[i] = annotate(list[i])
	}
	return list
}
