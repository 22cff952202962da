package booking

import (
	"fmt"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// Event is something that happens to a booking and may move its status.
type Event string

const (
	EventConfirm  Event = "confirm"
	EventCheckIn  Event = "check_in"
	EventExtend   Event = "extend"
	EventCheckOut Event = "check_out"
	EventCancel   Event = "cancel"
	EventNoShow   Event = "no_show"
)

// transitions maps current status and event to the next status. Terminal
// states have no outgoing edges.
var transitions = map[model.BookingStatus]map[Event]model.BookingStatus{
	model.BookingPending: {
		EventConfirm: model.BookingConfirmed,
		EventCancel:  model.BookingCancelled,
		EventNoShow:  model.BookingNoShow,
	},
	model.BookingConfirmed: {
		EventCheckIn: model.BookingActive,
		EventCancel:  model.BookingCancelled,
		EventNoShow:  model.BookingNoShow,
	},
	model.BookingActive: {
		EventExtend:   model.BookingExtended,
		EventCheckOut: model.BookingCompleted,
		EventCancel:   model.BookingCancelled,
		EventNoShow:   model.BookingNoShow,
	},
	model.BookingExtended: {
		EventExtend:   model.BookingExtended,
		EventCheckOut: model.BookingCompleted,
		EventCancel:   model.BookingCancelled,
	},
	model.BookingCompleted: {},
	model.BookingCancelled: {},
	model.BookingNoShow:    {},
}

// Transition returns the status reached by applying ev to from, or
// ErrIllegalTransition.
func Transition(from model.BookingStatus, ev Event) (model.BookingStatus, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return next, nil
}

// CanApply reports whether ev is legal from status s.
func CanApply(s model.BookingStatus, ev Event) bool {
	_, ok := transitions[s][ev]
	return ok
}

// IsTerminal reports whether no event can move s any further. Unknown
// statuses are treated as terminal.
func IsTerminal(s model.BookingStatus) bool {
	return len(transitions[s]) == 0
}

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s model.BookingStatus) bool {
	_, ok := transitions[s]
	return ok
}

// ParseEvent converts a string into an Event.
func ParseEvent(s string) (Event, error) {
	switch ev := Event(s); ev {
	case EventConfirm, EventCheckIn, EventExtend, EventCheckOut, EventCancel, EventNoShow:
		return ev, nil
	}
	return "", fmt.Errorf("unknown booking event: %q", s)
}
