/**
 * @description
 * Package lifecycle classifies NPP payment status codes and renders the progress
 * line shown while a payment is tracked. Everything here is pure; the
 * transition guard lives in machine.go.
 *
 * @notes
 * - REJECTED overlays the CLEARING step as failed and also appends a trailing
 *   step. RETURNED only appends. Rejection is detected during clearing while a
 *   return happens after settlement, so the two must not be rendered alike.
 */

package lifecycle

import (
	"strconv"
	"strings"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// Stages is the success path in display order.
var Stages = []domain.PaymentStatus{
	domain.StatusInitiated,
	domain.StatusClearing,
	domain.StatusSettled,
	domain.StatusConfirmed,
}

// rejectedStage is the index of the step a rejection is drawn on.
const rejectedStage = 1

// Classification is the position of a status on the success path.
type Classification struct {
	// Ordinal is the index in Stages, or -1 when the status is off the path.
	Ordinal  int
	Terminal bool
}

// Classify never fails: unknown codes are treated as not yet reached.
func Classify(status domain.PaymentStatus) Classification {
	c := Classification{Ordinal: -1}
	for i, stage := range Stages {
		if stage == status {
			c.Ordinal = i
			break
		}
	}
	c.Terminal = IsTerminal(status)
	return c
}

// IsTerminal reports whether no further status is expected after status.
func IsTerminal(status domain.PaymentStatus) bool {
	switch status {
	case domain.StatusConfirmed, domain.StatusRejected, domain.StatusReturned:
		return true
	default:
		return false
	}
}

// AutoCloses reports whether a streamed status ends the subscription.
// RETURNED is never streamed.
func AutoCloses(status domain.PaymentStatus) bool {
	return status == domain.StatusConfirmed || status == domain.StatusRejected
}

// Known reports whether status is one of the six codes the backend defines.
func Known(status domain.PaymentStatus) bool {
	return Classify(status).Ordinal >= 0 || status == domain.StatusRejected || status == domain.StatusReturned
}

// StepState is how a single step is drawn.
type StepState string

const (
	StepPending   StepState = "pending"
	StepActive    StepState = "active"
	StepCompleted StepState = "completed"
	StepFailed    StepState = "failed"
)

// Step is one dot on the progress line.
type Step struct {
	Label domain.PaymentStatus `json:"label"`
	State StepState            `json:"state"`
	// Marker is the glyph inside the dot.
	Marker string `json:"marker"`
	// LineFilled reports whether the connector leading into this step is filled.
	LineFilled bool `json:"lineFilled"`
	// Trailing is set on the extra step appended for REJECTED and RETURNED.
	Trailing bool `json:"trailing,omitempty"`
}

// Progress renders the progress line for status.
func Progress(status domain.PaymentStatus) []Step {
	current := Classify(status).Ordinal
	rejected := status == domain.StatusRejected
	returned := status == domain.StatusReturned

	steps := make([]Step, 0, len(Stages)+1)
	for i, stage := range Stages {
		step := Step{
			Label:      stage,
			State:      StepPending,
			Marker:     strconv.Itoa(i + 1),
			LineFilled: i > 0 && current >= i,
		}
		switch {
		case i < current:
			step.State = StepCompleted
			step.Marker = "✓"
		case i == current:
			step.State = StepActive
		}
		if rejected && i == rejectedStage {
			step.State = StepFailed
			step.Marker = "✗"
		}
		steps = append(steps, step)
	}

	if rejected || returned {
		trailing := Step{Label: status, Trailing: true}
		if rejected {
			trailing.State = StepFailed
			trailing.Marker = "✗"
		} else {
			trailing.State = StepActive
			trailing.Marker = "↩"
		}
		steps = append(steps, trailing)
	}
	return steps
}

// BadgeClass is the CSS class a status badge is drawn with.
func BadgeClass(status domain.PaymentStatus) string {
	return "badge-" + strings.ToLower(string(status))
}
