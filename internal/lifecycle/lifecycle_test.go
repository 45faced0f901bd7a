package lifecycle

import (
	"testing"

	"github.com/njabbott/npp-simulation/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status   domain.PaymentStatus
		ordinal  int
		terminal bool
	}{
		{domain.StatusInitiated, 0, false},
		{domain.StatusClearing, 1, false},
		{domain.StatusSettled, 2, false},
		{domain.StatusConfirmed, 3, true},
		{domain.StatusRejected, -1, true},
		{domain.StatusReturned, -1, true},
		{"PENDING_REVIEW", -1, false},
		{"", -1, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			got := Classify(tc.status)
			if got.Ordinal != tc.ordinal {
				t.Fatalf("expected ordinal %d, got %d", tc.ordinal, got.Ordinal)
			}
			if got.Terminal != tc.terminal {
				t.Fatalf("expected terminal=%t, got %t", tc.terminal, got.Terminal)
			}
		})
	}
}

func TestClassifyOrdinalIsNonDecreasingAlongSuccessPath(t *testing.T) {
	prev := -1
	for _, stage := range Stages {
		ordinal := Classify(stage).Ordinal
		if ordinal < prev {
			t.Fatalf("expected non-decreasing ordinal at %s, got %d after %d", stage, ordinal, prev)
		}
		prev = ordinal
	}
}

func TestAutoCloses(t *testing.T) {
	for status, want := range map[domain.PaymentStatus]bool{
		domain.StatusInitiated: false,
		domain.StatusSettled:   false,
		domain.StatusConfirmed: true,
		domain.StatusRejected:  true,
		domain.StatusReturned:  false,
	} {
		if got := AutoCloses(status); got != want {
			t.Fatalf("expected AutoCloses(%s)=%t, got %t", status, want, got)
		}
	}
}

func TestProgressSuccessPath(t *testing.T) {
	steps := Progress(domain.StatusSettled)
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}

	want := []struct {
		state  StepState
		marker string
		filled bool
	}{
		{StepCompleted, "✓", false},
		{StepCompleted, "✓", true},
		{StepActive, "3", true},
		{StepPending, "4", false},
	}
	for i, w := range want {
		if steps[i].State != w.state || steps[i].Marker != w.marker || steps[i].LineFilled != w.filled {
			t.Fatalf("step %d: expected %+v, got %+v", i, w, steps[i])
		}
	}
}

func TestProgressRejectedOverlaysClearingAndAppends(t *testing.T) {
	steps := Progress(domain.StatusRejected)
	if len(steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(steps))
	}
	if steps[1].State != StepFailed || steps[1].Marker != "✗" {
		t.Fatalf("expected CLEARING marked failed, got %+v", steps[1])
	}
	for _, i := range []int{0, 2, 3} {
		if steps[i].State != StepPending {
			t.Fatalf("expected step %d pending, got %s", i, steps[i].State)
		}
		if steps[i].LineFilled {
			t.Fatalf("expected step %d connector unfilled", i)
		}
	}
	last := steps[4]
	if !last.Trailing || last.Label != domain.StatusRejected || last.State != StepFailed || last.Marker != "✗" {
		t.Fatalf("unexpected trailing step %+v", last)
	}
}

func TestProgressReturnedOnlyAppends(t *testing.T) {
	steps := Progress(domain.StatusReturned)
	if len(steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(steps))
	}
	for i := 0; i < 4; i++ {
		if steps[i].State == StepFailed {
			t.Fatalf("expected no failed stage for RETURNED, got step %d failed", i)
		}
	}
	last := steps[4]
	if !last.Trailing || last.State != StepActive || last.Marker != "↩" {
		t.Fatalf("unexpected trailing step %+v", last)
	}
}

func TestProgressUnknownStatusIsNotYetReached(t *testing.T) {
	for i, step := range Progress("SOMETHING_NEW") {
		if step.State != StepPending {
			t.Fatalf("expected step %d pending, got %s", i, step.State)
		}
	}
}

func TestBadgeClass(t *testing.T) {
	if got := BadgeClass(domain.StatusConfirmed); got != "badge-confirmed" {
		t.Fatalf("expected badge-confirmed, got %q", got)
	}
}
