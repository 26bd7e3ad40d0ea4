// Package workflow holds the work-order state machine: the legal transition
// table and the payload each target state accepts.
package workflow

import (
	"errors"
	"fmt"

	"maintline/internal/domain"
)

var (
	// ErrCannotUpdate rejects a requested state that is not reachable from the current one.
	ErrCannotUpdate = errors.New("cannot update work order state")
	// ErrNotDeletable rejects deletion of a terminal work order.
	ErrNotDeletable = errors.New("work order is not deletable once DONE")
)

type step struct {
	next     domain.State
	previous domain.State
}

var table = map[domain.State]step{
	domain.StatePlanned:   {next: domain.StateValidated},
	domain.StateValidated: {next: domain.StateDoing, previous: domain.StatePlanned},
	domain.StateDoing:     {next: domain.StateDone, previous: domain.StateValidated},
	domain.StateDone:      {previous: domain.StateDoing},
}

// Initial is the only state a work order is created in.
const Initial = domain.StatePlanned

func Valid(s domain.State) bool {
	_, ok := table[s]
	return ok
}

// Next returns the state that follows s; false when s is terminal or unknown.
func Next(s domain.State) (domain.State, bool) {
	st, ok := table[s]
	if !ok || st.next == "" {
		return "", false
	}
	return st.next, true
}

func Previous(s domain.State) (domain.State, bool) {
	st, ok := table[s]
	if !ok || st.previous == "" {
		return "", false
	}
	return st.previous, true
}

func IsTerminal(s domain.State) bool {
	_, ok := Next(s)
	return Valid(s) && !ok
}

func Deletable(s domain.State) bool {
	return s != domain.StateDone
}

// CheckTransition accepts a request that keeps the current state or moves it
// one step forward.
func CheckTransition(current, requested domain.State) error {
	if !Valid(current) || !Valid(requested) {
		return fmt.Errorf("%w: unknown state %s -> %s", ErrCannotUpdate, current, requested)
	}
	if requested == current {
		return nil
	}
	if next, ok := Next(current); ok && next == requested {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrCannotUpdate, current, requested)
}

// CheckAdvance is the update path: only the single step forward is accepted.
func CheckAdvance(current, requested domain.State) error {
	next, ok := Next(current)
	if !ok || next != requested {
		return fmt.Errorf("%w: %s -> %s", ErrCannotUpdate, current, requested)
	}
	return nil
}

// NextStep describes what the next transition of a work order expects.
type NextStep struct {
	State             domain.State `json:"state"`
	AcceptsCheckList  bool         `json:"accepts_check_list"`
	KeepsFailureCause bool         `json:"keeps_failure_cause"`
}

// Step computes the next step from the stored state and activity type.
func Step(s domain.State, activity domain.ActivityType) (NextStep, bool) {
	next, ok := Next(s)
	if !ok {
		return NextStep{}, false
	}
	return NextStep{
		State:             next,
		AcceptsCheckList:  next == domain.StateDone && activity == domain.ActivityInspection,
		KeepsFailureCause: activity == domain.ActivityCorrective,
	}, true
}
