package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"maintline/internal/domain"
	"maintline/internal/engine"
)

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-machine",
		Method:        http.MethodPost,
		Path:          "/machines",
		Summary:       "Register a machine",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateMachineRequest `json:"body"`
	}) (*struct {
		Body domain.Machine `json:"body"`
	}, error) {
		m, err := e.CreateMachine(ctx, input.Body.Name, stringOrEmpty(input.Body.Location))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Machine `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-machines",
		Method:      http.MethodGet,
		Path:        "/machines",
		Summary:     "List machines with their activities and engines",
		Tags:        []string{"catalog"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MachineList `json:"body"`
	}, error) {
		list, err := e.ListMachines(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body MachineList `json:"body"`
		}{Body: MachineList{Items: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-engine",
		Method:        http.MethodPost,
		Path:          "/machines/{code}/engines",
		Summary:       "Add an engine to a machine",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Code string              `path:"code"`
		Body CreateEngineRequest `json:"body"`
	}) (*struct {
		Body domain.Engine `json:"body"`
	}, error) {
		code, err := engine.ParseCode(input.Code)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		eng, err := e.CreateEngine(ctx, code, input.Body.Function)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Engine `json:"body"`
		}{Body: eng}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/machines/{code}/activities",
		Summary:       "Add an activity to a machine",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Code string                `path:"code"`
		Body CreateActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		code, err := engine.ParseCode(input.Code)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := checkBody(input.Body); err != nil {
			return nil, err
		}
		a, err := e.CreateActivity(ctx, engine.CreateActivityOptions{
			MachineCode:    code,
			Name:           input.Body.Name,
			Type:           domain.ActivityType(input.Body.Type),
			FrequencyHours: input.Body.FrequencyHours,
			CheckItems:     input.Body.CheckItems,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{code}",
		Summary:     "Get an activity with its check items",
		Tags:        []string{"catalog"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Code string `path:"code"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		code, err := engine.ParseCode(input.Code)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		a, err := e.GetActivity(ctx, code)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})
}

func registerStores(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-store",
		Method:        http.MethodPost,
		Path:          "/stores",
		Summary:       "Create a store line, reviving a deleted one with the same name",
		Tags:          []string{"stores"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateStoreRequest `json:"body"`
	}) (*struct {
		Body domain.Store `json:"body"`
	}, error) {
		opts := engine.CreateStoreOptions{
			MachineCode: input.Body.MachineCode,
			Name:        input.Body.Name,
			Unit:        input.Body.Unit,
			Amount:      input.Body.Amount,
			ActorID:     actorID(ctx),
		}
		if input.Body.MinimumAmount != nil {
			opts.MinimumAmount = *input.Body.MinimumAmount
		}
		s, err := e.CreateStore(ctx, opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Store `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stores",
		Method:      http.MethodGet,
		Path:        "/stores",
		Summary:     "List live store lines",
		Tags:        []string{"stores"},
	}, func(ctx context.Context, input *struct {
		MachineCode int64 `query:"machine_code" doc:"Restrict to one machine"`
	}) (*struct {
		Body StoreList `json:"body"`
	}, error) {
		list, err := e.ListStores(ctx, input.MachineCode)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body StoreList `json:"body"`
		}{Body: StoreList{Items: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-store",
		Method:        http.MethodDelete,
		Path:          "/stores/{id}",
		Summary:       "Soft delete a store line",
		Tags:          []string{"stores"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		id, err := engine.ParseCode(input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if err := e.DeleteStore(ctx, id, actorID(ctx)); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
