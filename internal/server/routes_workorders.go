package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"maintline/internal/domain"
	"maintline/internal/engine"
	"maintline/internal/workflow"
)

type workOrderPath struct {
	ID string `path:"id" doc:"Work order code"`
}

type workOrderBody struct {
	Body domain.WorkOrder `json:"body"`
}

func registerWorkOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-order",
		Method:        http.MethodPost,
		Path:          "/work-orders",
		Summary:       "Create a work order in PLANNED",
		Tags:          []string{"work-orders"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkOrderRequest `json:"body"`
	}) (*workOrderBody, error) {
		opts := engine.CreateWorkOrderOptions{
			MachineCode:  input.Body.MachineCode,
			EngineCode:   input.Body.EngineCode,
			ActivityCode: input.Body.ActivityCode,
			ActorID:      actorID(ctx),
		}
		if input.Body.Priority != nil {
			opts.Priority = domain.Priority(*input.Body.Priority)
		}
		w, err := e.CreateWorkOrder(ctx, opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &workOrderBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-orders",
		Method:      http.MethodGet,
		Path:        "/work-orders",
		Summary:     "List work orders active in a weekly, monthly or annual window",
		Tags:        []string{"work-orders"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Range string `query:"range" enum:"WEEKLY,MONTHLY,ANNUAL" doc:"Defaults to WEEKLY"`
		Date  string `query:"date" doc:"Reference day, YYYY-MM-DD; defaults to today"`
	}) (*struct {
		Body WorkOrderList `json:"body"`
	}, error) {
		opts, err := e.ParseListOptions(input.Range, input.Date)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		list, err := e.ListWorkOrders(ctx, opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body WorkOrderList `json:"body"`
		}{Body: WorkOrderList{Items: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "count-work-orders",
		Method:      http.MethodGet,
		Path:        "/work-orders/count",
		Summary:     "Last issued work order code and the machine cross-reference",
		Tags:        []string{"work-orders"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.WorkOrderCount `json:"body"`
	}, error) {
		count, err := e.CountWorkOrders(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.WorkOrderCount `json:"body"`
		}{Body: count}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-order",
		Method:      http.MethodGet,
		Path:        "/work-orders/{id}",
		Summary:     "Get a work order",
		Tags:        []string{"work-orders"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *workOrderPath) (*workOrderBody, error) {
		code, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		w, err := e.GetWorkOrder(ctx, code)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &workOrderBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-order",
		Method:      http.MethodPatch,
		Path:        "/work-orders/{id}",
		Summary:     "Advance a work order to its next state",
		Description: "The body carries the target state and the fields that state requires. " +
			"Only the immediate successor of the current state is accepted.",
		Tags:   []string{"work-orders"},
		Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed},
		// The body is a union keyed by state; workflow.DecodePayload validates it.
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody []byte `contentType:"application/json"`
	}) (*workOrderBody, error) {
		code, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "", "body required", nil)
		}
		payload, err := workflow.DecodePayload(input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "", err.Error(), nil)
		}
		w, err := e.UpdateWorkOrder(ctx, code, payload, actorID(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &workOrderBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-work-order",
		Method:        http.MethodDelete,
		Path:          "/work-orders/{id}",
		Summary:       "Delete a work order that is not DONE",
		Tags:          []string{"work-orders"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed},
	}, func(ctx context.Context, input *workOrderPath) (*struct{}, error) {
		code, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := e.DeleteWorkOrder(ctx, code, actorID(ctx)); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-work-order",
		Method:      http.MethodPut,
		Path:        "/work-orders/{id}/schedule",
		Summary:     "Plan a work order on a day or flag it on schedule",
		Tags:        []string{"work-orders"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ScheduleRequest `json:"body"`
	}) (*workOrderBody, error) {
		code, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := checkBody(input.Body); err != nil {
			return nil, err
		}
		upd := engine.ScheduleUpdate{OnSchedule: input.Body.OnSchedule, ActorID: actorID(ctx)}
		if input.Body.DaySchedule != nil {
			day, err := parseDay(e, *input.Body.DaySchedule)
			if err != nil {
				return nil, err
			}
			upd.DaySchedule = &day
		}
		w, err := e.SetOnSchedule(ctx, code, upd)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &workOrderBody{Body: w}, nil
	})
}

func parseDay(e engine.Engine, s string) (time.Time, error) {
	day, err := e.Calendar.ParseDate(s)
	if err != nil {
		return day, newAPIError(http.StatusBadRequest, "", err.Error(), map[string]any{"field": "day_schedule"})
	}
	return day, nil
}
