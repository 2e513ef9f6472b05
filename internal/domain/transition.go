package domain

import (
	"errors"
	"fmt"
)

// Action is an operation requested against a ticket.
type Action string

const (
	ActionClaim        Action = "claim"
	ActionUnclaim      Action = "unclaim"
	ActionClose        Action = "close"
	ActionReopen       Action = "reopen"
	ActionWarn         Action = "warn"
	ActionClearWarning Action = "clear_warning"
	ActionAssign       Action = "assign"
	ActionPrioritize   Action = "prioritize"
	ActionTouch        Action = "touch"
)

// ErrTransitionRejected is wrapped by every TransitionError.
var ErrTransitionRejected = errors.New("transition rejected")

// TransitionError explains why Decide refused an action.
type TransitionError struct {
	Action Action
	From   TicketStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s from %s: %s", e.Action, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrTransitionRejected
}

// Decide applies the ticket guard table without touching storage. It returns
// the status the ticket has after the action, or a *TransitionError.
//
//	claim          not closed          -> claimed
//	unclaim        not closed          -> open
//	close          not closed          -> closed
//	reopen         closed              -> open
//	warn           not closed, unwarned -> unchanged
//	clear_warning  warned              -> unchanged
//	assign, prioritize, touch  exists  -> unchanged
func Decide(t *Ticket, a Action) (TicketStatus, error) {
	if t == nil {
		return "", &TransitionError{Action: a, Reason: "ticket not found"}
	}
	reject := func(reason string) (TicketStatus, error) {
		return "", &TransitionError{Action: a, From: t.Status, Reason: reason}
	}

	switch a {
	case ActionClaim:
		if t.IsClosed() {
			return reject("ticket is closed")
		}
		return TicketStatusClaimed, nil
	case ActionUnclaim:
		if t.IsClosed() {
			return reject("ticket is closed")
		}
		return TicketStatusOpen, nil
	case ActionClose:
		if t.IsClosed() {
			return reject("ticket already closed")
		}
		return TicketStatusClosed, nil
	case ActionReopen:
		if !t.IsClosed() {
			return reject("ticket is not closed")
		}
		return TicketStatusOpen, nil
	case ActionWarn:
		if t.IsClosed() {
			return reject("ticket is closed")
		}
		if t.IsWarned() {
			return reject("ticket already warned")
		}
		return t.Status, nil
	case ActionClearWarning:
		if !t.IsWarned() {
			return reject("ticket has no warning")
		}
		return t.Status, nil
	case ActionAssign, ActionPrioritize, ActionTouch:
		return t.Status, nil
	}
	return reject("unknown action")
}

// IsRejected reports whether err came from Decide.
func IsRejected(err error) bool {
	return errors.Is(err, ErrTransitionRejected)
}
