package domain

import "time"

// State is the lifecycle position of a work order.
type State string

const (
	StatePlanned   State = "PLANNED"
	StateValidated State = "VALIDATED"
	StateDoing     State = "DOING"
	StateDone      State = "DONE"
)

type Priority string

const (
	PriorityUrgent    Priority = "URGENT"
	PriorityImportant Priority = "IMPORTANT"
	PriorityNormal    Priority = "NORMAL"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityImportant, PriorityNormal:
		return true
	}
	return false
}

type ActivityType string

const (
	ActivityPlannedPreventive ActivityType = "PLANNED_PREVENTIVE"
	ActivityCorrective        ActivityType = "CORRECTIVE"
	ActivityInspection        ActivityType = "INSPECTION"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityPlannedPreventive, ActivityCorrective, ActivityInspection:
		return true
	}
	return false
}

type Machine struct {
	Code      int64     `json:"code"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type Engine struct {
	Code        int64     `json:"code"`
	MachineCode int64     `json:"machine_code"`
	Function    string    `json:"function"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
}

type CheckItem struct {
	ID           int64  `json:"id"`
	ActivityCode int64  `json:"activity_code"`
	Description  string `json:"description"`
}

type Activity struct {
	Code           int64        `json:"code"`
	MachineCode    int64        `json:"machine_code"`
	Name           string       `json:"name"`
	Type           ActivityType `json:"type" enum:"PLANNED_PREVENTIVE,CORRECTIVE,INSPECTION"`
	FrequencyHours *int         `json:"frequency_hours,omitempty"`
	CheckItems     []CheckItem  `json:"check_items,omitempty"`
	CreatedAt      time.Time    `json:"created_at" format:"date-time"`
}

// Store is a spare-part inventory line scoped to one machine.
type Store struct {
	ID            int64     `json:"id"`
	MachineCode   int64     `json:"machine_code"`
	Name          string    `json:"name"`
	Unit          string    `json:"unit"`
	Amount        float64   `json:"amount"`
	MinimumAmount float64   `json:"minimum_amount"`
	Deleted       bool      `json:"-"`
	CreatedAt     time.Time `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time `json:"updated_at" format:"date-time"`
}

type SecurityMeasure struct {
	Description string `json:"description" validate:"required"`
	Responsible string `json:"responsible,omitempty"`
}

type CheckListVerification struct {
	CheckItemID int64  `json:"check_item_id" validate:"required,gt=0"`
	Verified    bool   `json:"verified"`
	Note        string `json:"note,omitempty"`
}

type StoreConsumption struct {
	StoreID int64   `json:"store_id,omitempty"`
	Name    string  `json:"name" validate:"required"`
	Amount  float64 `json:"amount" validate:"gt=0"`
}

type WorkOrder struct {
	Code                 int64                   `json:"code"`
	MachineCode          int64                   `json:"machine_code"`
	MachineName          string                  `json:"machine_name,omitempty"`
	EngineCode           *int64                  `json:"engine_code,omitempty"`
	EngineFunction       *string                 `json:"engine_function,omitempty"`
	ActivityCode         *int64                  `json:"activity_code,omitempty"`
	ActivityName         *string                 `json:"activity_name,omitempty"`
	ActivityType         *ActivityType           `json:"activity_type,omitempty"`
	FrequencyHours       *int                    `json:"frequency_hours,omitempty"`
	State                State                   `json:"state" enum:"PLANNED,VALIDATED,DOING,DONE"`
	NextState            *State                  `json:"next_state,omitempty"`
	Priority             Priority                `json:"priority" enum:"URGENT,IMPORTANT,NORMAL"`
	CreatedAt            time.Time               `json:"created_at" format:"date-time"`
	UpdatedAt            time.Time               `json:"updated_at" format:"date-time"`
	StartDate            *time.Time              `json:"start_date,omitempty" format:"date-time"`
	EndDate              *time.Time              `json:"end_date,omitempty" format:"date-time"`
	FailureCause         *string                 `json:"failure_cause,omitempty"`
	TotalHours           *int                    `json:"total_hours,omitempty"`
	OnSchedule           *bool                   `json:"on_schedule,omitempty"`
	DaySchedule          *time.Time              `json:"day_schedule,omitempty" format:"date-time"`
	Observations         *string                 `json:"observations,omitempty"`
	SecurityMeasures     []SecurityMeasure       `json:"security_measures,omitempty"`
	ProtectionEquipments []string                `json:"protection_equipments,omitempty"`
	CheckListVerified    []CheckListVerification `json:"check_list_verified,omitempty"`
	StoresConsumed       []StoreConsumption      `json:"stores_consumed,omitempty"`
}

// Kind returns the activity type, empty when no activity is attached.
func (w WorkOrder) Kind() ActivityType {
	if w.ActivityType == nil {
		return ""
	}
	return *w.ActivityType
}

type DraftWorkOrder struct {
	Code          int64     `json:"code"`
	PlannedDay    time.Time `json:"planned_day" format:"date-time"`
	WorkOrderCode int64     `json:"work_order_code"`
	CreatedAt     time.Time `json:"created_at" format:"date-time"`
	Priority      Priority  `json:"priority,omitempty"`
	ActivityName  string    `json:"activity_name,omitempty"`
	MachineName   string    `json:"machine_name,omitempty"`
}

// MachineIndicator aggregates the hours spent on one machine in a window.
type MachineIndicator struct {
	MachineCode int64       `json:"machine_code"`
	MachineName string      `json:"machine_name"`
	Hours       int         `json:"hours"`
	WorkOrders  []WorkOrder `json:"work_orders"`
}

type ActivityRef struct {
	Code           int64        `json:"code"`
	Name           string       `json:"name"`
	Type           ActivityType `json:"type"`
	FrequencyHours *int         `json:"frequency_hours,omitempty"`
}

type EngineRef struct {
	Code     int64  `json:"code"`
	Function string `json:"function"`
}

// MachineSummary is the cross-reference used by quick-create forms.
type MachineSummary struct {
	Code       int64         `json:"code"`
	Name       string        `json:"name"`
	Activities []ActivityRef `json:"activities"`
	Engines    []EngineRef   `json:"engines"`
}

type WorkOrderCount struct {
	Current  int64            `json:"current"`
	Machines []MachineSummary `json:"machines"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
