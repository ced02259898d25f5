package rental

import "errors"

type Status string

const (
	StatusPending             Status = "pending"
	StatusWaitingConfirmation Status = "waiting_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusReturned            Status = "returned"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
)

var (
	AllStatuses = []Status{
		StatusPending,
		StatusWaitingConfirmation,
		StatusConfirmed,
		StatusReturned,
		StatusCompleted,
		StatusCancelled,
	}

	// ErrInvalidTransition is returned when a rental is not in a state allowing the requested operation.
	ErrInvalidTransition = errors.New("invalid rental status transition")

	transitions = map[Status][]Status{
		StatusPending:             {StatusWaitingConfirmation, StatusCancelled},
		StatusWaitingConfirmation: {StatusConfirmed, StatusPending, StatusCancelled},
		StatusConfirmed:           {StatusReturned},
		StatusReturned:            {StatusCompleted},
	}
)

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, st := range transitions[s] {
		if st == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	return nil
}
