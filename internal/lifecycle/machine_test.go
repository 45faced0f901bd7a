package lifecycle

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/njabbott/npp-simulation/internal/domain"
)

func newTestMachine(t *testing.T, initial domain.PaymentStatus) *Machine {
	t.Helper()
	m, err := NewMachine(initial, slog.NewTextHandler(io.Discard, nil))
	if err != nil {
		t.Fatalf("NewMachine returned error: %v", err)
	}
	return m
}

func TestMachineFollowsSuccessPath(t *testing.T) {
	m := newTestMachine(t, domain.StatusInitiated)
	for _, next := range []domain.PaymentStatus{domain.StatusClearing, domain.StatusSettled, domain.StatusConfirmed} {
		if err := m.Apply(next); err != nil {
			t.Fatalf("Apply(%s) returned error: %v", next, err)
		}
	}
	if m.Status() != domain.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", m.Status())
	}
}

func TestMachineRejectsLateAndBackwardEvents(t *testing.T) {
	cases := []struct {
		name    string
		path    []domain.PaymentStatus
		late    domain.PaymentStatus
		settled domain.PaymentStatus
	}{
		{"late settled after confirmed", []domain.PaymentStatus{domain.StatusClearing, domain.StatusConfirmed}, domain.StatusSettled, domain.StatusConfirmed},
		{"clearing after settled", []domain.PaymentStatus{domain.StatusSettled}, domain.StatusClearing, domain.StatusSettled},
		{"confirmed after rejected", []domain.PaymentStatus{domain.StatusClearing, domain.StatusRejected}, domain.StatusConfirmed, domain.StatusRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(t, domain.StatusInitiated)
			for _, next := range tc.path {
				if err := m.Apply(next); err != nil {
					t.Fatalf("Apply(%s) returned error: %v", next, err)
				}
			}
			if err := m.Apply(tc.late); err == nil {
				t.Fatalf("expected %s to be refused", tc.late)
			}
			if m.Status() != tc.settled {
				t.Fatalf("expected status to remain %s, got %s", tc.settled, m.Status())
			}
		})
	}
}

func TestMachineRepeatedStatusIsNoop(t *testing.T) {
	m := newTestMachine(t, domain.StatusClearing)
	if err := m.Apply(domain.StatusClearing); err != nil {
		t.Fatalf("expected replayed status to be accepted, got %v", err)
	}
}

func TestMachineUnknownStatus(t *testing.T) {
	m := newTestMachine(t, domain.StatusInitiated)
	err := m.Apply("BOGUS")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if m.Status() != domain.StatusInitiated {
		t.Fatalf("expected INITIATED, got %s", m.Status())
	}
}

func TestMachineStartsFromUnknownSubmissionStatus(t *testing.T) {
	m := newTestMachine(t, "QUEUED")
	if m.Status() != "" {
		t.Fatalf("expected empty status, got %s", m.Status())
	}
	if err := m.Apply(domain.StatusClearing); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
}

func TestMachineReturnedOnlyByDirectMutation(t *testing.T) {
	m := newTestMachine(t, domain.StatusSettled)
	if err := m.Apply(domain.StatusReturned); !errors.Is(err, ErrReturnNotStreamed) {
		t.Fatalf("expected ErrReturnNotStreamed, got %v", err)
	}
	if !m.CanReturn() {
		t.Fatalf("expected SETTLED payment to be returnable")
	}
	if err := m.Return(); err != nil {
		t.Fatalf("Return returned error: %v", err)
	}
	if m.Status() != domain.StatusReturned {
		t.Fatalf("expected RETURNED, got %s", m.Status())
	}
	if m.CanReturn() {
		t.Fatalf("expected RETURNED payment to not be returnable again")
	}
}

func TestMachineReturnRefusedBeforeSettlement(t *testing.T) {
	m := newTestMachine(t, domain.StatusClearing)
	if m.CanReturn() {
		t.Fatalf("expected CLEARING payment to not be returnable")
	}
	if err := m.Return(); err == nil {
		t.Fatalf("expected return from CLEARING to fail")
	}
}
