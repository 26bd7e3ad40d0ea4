package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"maintline/internal/domain"
)

// ErrInvalidPayload marks a transition body that does not match the shape
// its target state requires.
var ErrInvalidPayload = errors.New("invalid transition payload")

// Payload is the body of a transition request, one variant per target state.
type Payload interface {
	Target() domain.State
}

type PlannedPayload struct {
	State domain.State `json:"state"`
}

type ValidatedPayload struct {
	State domain.State `json:"state"`
}

// DoingPayload starts the work: safety measures and protective equipment are mandatory.
type DoingPayload struct {
	State                domain.State             `json:"state"`
	StartDate            *time.Time               `json:"start_date,omitempty"`
	SecurityMeasures     []domain.SecurityMeasure `json:"security_measures" validate:"required,min=1,dive"`
	ProtectionEquipments []string                 `json:"protection_equipments" validate:"required,min=1,dive,required"`
}

type DonePayload struct {
	State             domain.State                   `json:"state"`
	EndDate           *time.Time                     `json:"end_date,omitempty"`
	CheckListVerified []domain.CheckListVerification `json:"check_list_verified,omitempty" validate:"omitempty,dive"`
	Stores            []domain.StoreConsumption      `json:"stores,omitempty" validate:"omitempty,dive"`
	Observations      *string                        `json:"observations,omitempty"`
	FailureCause      *string                        `json:"failure_cause,omitempty"`
}

func (PlannedPayload) Target() domain.State   { return domain.StatePlanned }
func (ValidatedPayload) Target() domain.State { return domain.StateValidated }
func (DoingPayload) Target() domain.State     { return domain.StateDoing }
func (DonePayload) Target() domain.State      { return domain.StateDone }

type decoder func([]byte) (Payload, error)

var decoders = map[domain.State]decoder{
	domain.StatePlanned:   decodeAs[PlannedPayload],
	domain.StateValidated: decodeAs[ValidatedPayload],
	domain.StateDoing:     decodeAs[DoingPayload],
	domain.StateDone:      decodeAs[DonePayload],
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator returns the validator used for payloads, with fields named by
// their json tags.
func Validator() *validator.Validate { return validate }

// DecodePayload reads the target state from raw and decodes the rest of the
// body into that state's variant. Fields the variant does not know are refused.
func DecodePayload(raw []byte) (Payload, error) {
	var head struct {
		State domain.State `json:"state"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if head.State == "" {
		return nil, fmt.Errorf("%w: state is required", ErrInvalidPayload)
	}
	dec, ok := decoders[head.State]
	if !ok {
		return nil, fmt.Errorf("%w: unknown state %s", ErrInvalidPayload, head.State)
	}
	return dec(raw)
}

func decodeAs[T Payload](raw []byte) (Payload, error) {
	var p T
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	if err := d.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, p.Target(), err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidPayload, p.Target(), describe(err))
	}
	return p, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
