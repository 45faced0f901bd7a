/**
 * @description
 * Machine guards the transitions of one tracked payment. It wraps a go-fsm
 * machine so that streamed statuses only move forward and RETURNED is reached
 * only through an explicit return.
 *
 * @dependencies
 * - github.com/robbyt/go-fsm: Transition table and state.
 */

package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-fsm"

	"github.com/njabbott/npp-simulation/internal/domain"
)

var (
	// ErrInvalidTransition is returned for a status that would move the payment
	// backwards or out of a terminal state.
	ErrInvalidTransition = fsm.ErrInvalidStateTransition
	// ErrUnknownStatus is returned for a code outside the six known statuses.
	ErrUnknownStatus = errors.New("unknown payment status")
	// ErrReturnNotStreamed is returned when RETURNED arrives on the event stream.
	ErrReturnNotStreamed = errors.New("returned status is only set by a return request")
)

// stateUnknown is the starting state when a submission reports a code we do
// not recognise. Every stage is reachable from it.
const stateUnknown = "UNKNOWN"

var transitions = map[string][]string{
	stateUnknown: {
		string(domain.StatusInitiated), string(domain.StatusClearing), string(domain.StatusSettled),
		string(domain.StatusConfirmed), string(domain.StatusRejected),
	},
	string(domain.StatusInitiated): {
		string(domain.StatusClearing), string(domain.StatusSettled),
		string(domain.StatusConfirmed), string(domain.StatusRejected),
	},
	string(domain.StatusClearing): {
		string(domain.StatusSettled), string(domain.StatusConfirmed), string(domain.StatusRejected),
	},
	string(domain.StatusSettled): {
		string(domain.StatusConfirmed), string(domain.StatusRejected), string(domain.StatusReturned),
	},
	string(domain.StatusConfirmed): {string(domain.StatusReturned)},
	string(domain.StatusRejected):  {},
	string(domain.StatusReturned):  {},
}

// Machine guards the status of one tracked payment.
type Machine struct {
	fsm *fsm.Machine
}

// NewMachine starts a machine at the status the submission response carried.
// A nil handler logs through slog's default handler.
func NewMachine(initial domain.PaymentStatus, handler slog.Handler) (*Machine, error) {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	start := string(initial)
	if !Known(initial) {
		start = stateUnknown
	}
	m, err := fsm.New(handler, start, transitions)
	if err != nil {
		return nil, fmt.Errorf("create lifecycle machine: %w", err)
	}
	return &Machine{fsm: m}, nil
}

// Status is the last accepted status. It is empty while the machine still
// sits in its unknown starting state.
func (m *Machine) Status() domain.PaymentStatus {
	state := m.fsm.GetState()
	if state == stateUnknown {
		return ""
	}
	return domain.PaymentStatus(state)
}

// Apply moves the machine to a streamed status. Repeating the current status
// is accepted as a no-op, which covers the replay sent on subscribe.
func (m *Machine) Apply(next domain.PaymentStatus) error {
	if !Known(next) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, next)
	}
	if next == domain.StatusReturned {
		return ErrReturnNotStreamed
	}
	return m.move(next)
}

// Return records a post-settlement return.
func (m *Machine) Return() error {
	return m.move(domain.StatusReturned)
}

// CanReturn reports whether a return request is valid from the current status.
func (m *Machine) CanReturn() bool {
	switch m.Status() {
	case domain.StatusSettled, domain.StatusConfirmed:
		return true
	default:
		return false
	}
}

func (m *Machine) move(next domain.PaymentStatus) error {
	if m.fsm.GetState() == string(next) {
		return nil
	}
	if err := m.fsm.Transition(string(next)); err != nil {
		return fmt.Errorf("%s -> %s: %w", m.fsm.GetState(), next, err)
	}
	return nil
}
