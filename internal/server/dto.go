package server

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"

	"maintline/internal/domain"
	"maintline/internal/workflow"
)

// checkBody applies the validate tags huma's schema cannot express, using the
// same validator as the work order payloads.
func checkBody(body any) huma.StatusError {
	err := workflow.Validator().Struct(body)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newAPIError(http.StatusBadRequest, "", err.Error(), nil)
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return newAPIError(http.StatusBadRequest, "", "request body is invalid", map[string]any{"fields": fields})
}

// Request payloads

type CreateMachineRequest struct {
	Name     string  `json:"name" minLength:"1"`
	Location *string `json:"location,omitempty"`
}

type CreateEngineRequest struct {
	Function string `json:"function" minLength:"1"`
}

type CreateActivityRequest struct {
	Name           string   `json:"name" minLength:"1"`
	Type           string   `json:"type" enum:"PLANNED_PREVENTIVE,CORRECTIVE,INSPECTION"`
	FrequencyHours *int     `json:"frequency_hours,omitempty" minimum:"1"`
	CheckItems     []string `json:"check_items,omitempty" validate:"omitempty,dive,required,max=200"`
}

type CreateStoreRequest struct {
	MachineCode   int64    `json:"machine_code" minimum:"1"`
	Name          string   `json:"name" minLength:"1"`
	Unit          string   `json:"unit" minLength:"1"`
	Amount        float64  `json:"amount" minimum:"0"`
	MinimumAmount *float64 `json:"minimum_amount,omitempty" minimum:"0"`
}

type CreateWorkOrderRequest struct {
	MachineCode  int64   `json:"machine_code" minimum:"1"`
	EngineCode   *int64  `json:"engine_code,omitempty"`
	ActivityCode *int64  `json:"activity_code,omitempty"`
	Priority     *string `json:"priority,omitempty" enum:"URGENT,IMPORTANT,NORMAL"`
}

type ScheduleRequest struct {
	DaySchedule *string `json:"day_schedule,omitempty" doc:"YYYY-MM-DD or RFC3339" validate:"required_without=OnSchedule"`
	OnSchedule  *bool   `json:"on_schedule,omitempty"`
}

type PromoteDraftRequest struct {
	Priority string `json:"priority,omitempty" enum:"URGENT,IMPORTANT,NORMAL"`
}

// Response payloads

type MachineList struct {
	Items []domain.MachineSummary `json:"items"`
}

type StoreList struct {
	Items []domain.Store `json:"items"`
}

type WorkOrderList struct {
	Items []domain.WorkOrder `json:"items"`
}

type DraftList struct {
	Items []domain.DraftWorkOrder `json:"items"`
}

type IndicatorList struct {
	Items []domain.MachineIndicator `json:"items"`
}

type EventList struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
