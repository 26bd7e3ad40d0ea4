package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"maintline/internal/domain"
	"maintline/internal/engine"
	"maintline/internal/repo"
)

type windowQuery struct {
	Date   string `query:"date" doc:"Reference day, YYYY-MM-DD; defaults to today"`
	Strict bool   `query:"strict" doc:"Only count orders planned on a day inside the window"`
}

func registerPlanning(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/schedule",
		Summary:     "Weekly schedule",
		Tags:        []string{"planning"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *windowQuery) (*struct {
		Body WorkOrderList `json:"body"`
	}, error) {
		date, err := e.ReferenceDate(input.Date)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		list, err := e.GetSchedule(ctx, date, input.Strict)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body WorkOrderList `json:"body"`
		}{Body: WorkOrderList{Items: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-indicators",
		Method:      http.MethodGet,
		Path:        "/indicators",
		Summary:     "Monthly hours per machine",
		Tags:        []string{"planning"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *windowQuery) (*struct {
		Body IndicatorList `json:"body"`
	}, error) {
		date, err := e.ReferenceDate(input.Date)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		list, err := e.GetIndicators(ctx, date, input.Strict)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body IndicatorList `json:"body"`
		}{Body: IndicatorList{Items: list}}, nil
	})
}

func registerDrafts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/drafts",
		Summary:     "Drafts planned in the week of date",
		Tags:        []string{"drafts"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `query:"date" doc:"Reference day, YYYY-MM-DD; defaults to today"`
	}) (*struct {
		Body DraftList `json:"body"`
	}, error) {
		date, err := e.ReferenceDate(input.Date)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		list, err := e.ListDrafts(ctx, date)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body DraftList `json:"body"`
		}{Body: DraftList{Items: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "promote-draft",
		Method:        http.MethodPost,
		Path:          "/drafts/{id}/promote",
		Summary:       "Turn a draft into a PLANNED work order",
		Tags:          []string{"drafts"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body *PromoteDraftRequest `json:"body,omitempty" required:"false"`
	}) (*workOrderBody, error) {
		code, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		var priority domain.Priority
		if input.Body != nil {
			priority = domain.Priority(input.Body.Priority)
		}
		w, err := e.PromoteDraft(ctx, code, priority, actorID(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &workOrderBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-draft",
		Method:        http.MethodDelete,
		Path:          "/drafts/{id}",
		Summary:       "Discard a draft",
		Tags:          []string{"drafts"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		code, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := e.DeleteDraft(ctx, code, actorID(ctx)); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"work_order,draft,store"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor" doc:"next_cursor of the previous page"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		filter := repo.EventFilter{Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID}
		if input.Cursor != "" {
			before, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || before <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			filter.Before = before
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, filter)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := EventList{Items: []domain.Event{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body EventList `json:"body"`
		}{Body: resp}, nil
	})
}
