/**
 * @description
 * Package app drives the send-payment workflow page. A Page is a short-lived
 * view over a store.Cell: it is created on mount, reads its whole state from
 * the cell, writes every change back to it, and owns at most one live status
 * stream through a subscription.Manager.
 *
 * @dependencies
 * - internal/store: The cell the page reads and writes.
 * - internal/subscription: Live status stream ownership.
 * - internal/lifecycle: Transition guard and progress rendering.
 * - pkg/nppclient: The default Backend and stream Source.
 *
 * @notes
 * - Page.mu is never held while a subscription handle is closed. A handle's
 *   Close waits for an in-flight delivery, and deliveries take Page.mu.
 * - Async completions carry the session generation they started under and are
 *   dropped if the cell has been reset since.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/lifecycle"
	"github.com/njabbott/npp-simulation/internal/store"
	"github.com/njabbott/npp-simulation/internal/subscription"
	"github.com/njabbott/npp-simulation/pkg/nppclient"
)

// Backend is the subset of the NPP API the page calls.
type Backend interface {
	SubmitPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentRecord, error)
	ResolvePayID(ctx context.Context, payIDType domain.PayIDType, value string) (*domain.PayeeResolution, error)
	ListPayIDs(ctx context.Context) ([]domain.PayeeResolution, error)
	ListMessages(ctx context.Context) ([]domain.MessageRecord, error)
	ReturnPayment(ctx context.Context, id int64) (*domain.PaymentRecord, error)
	GetPayment(ctx context.Context, id int64) (*domain.PaymentRecord, error)
}

// OutcomePublisher receives the end of every tracked payment.
type OutcomePublisher interface {
	PublishTrackingOutcome(ctx context.Context, outcome domain.TrackingOutcome) error
}

// Dependencies are the collaborators shared by every page of a shell.
type Dependencies struct {
	Backend Backend
	Streams subscription.Source
	// Outcomes may be nil.
	Outcomes OutcomePublisher
	// Logger backs the lifecycle machine. Nil uses slog's default logger.
	Logger *slog.Logger
	// OnChange, when set, is called with the stored session after every change
	// driven by the stream or a background fetch. It must not call back into
	// the page.
	OnChange func(session domain.TrackingSession)
}

// NewDependencies wires a page to the NPP API client.
func NewDependencies(client *nppclient.Client, outcomes OutcomePublisher) Dependencies {
	return Dependencies{
		Backend: client,
		Streams: subscription.SourceFunc(func(ctx context.Context, paymentID string) (subscription.Stream, error) {
			stream, err := client.OpenStatusStream(ctx, paymentID)
			if err != nil {
				return nil, err
			}
			return stream, nil
		}),
		Outcomes: outcomes,
	}
}

// View is what the page renders.
type View struct {
	Session  domain.TrackingSession `json:"session"`
	Progress []lifecycle.Step       `json:"progress,omitempty"`
	Badge    string                 `json:"badge,omitempty"`
	Error    string                 `json:"error,omitempty"`
	// ErrorKind is empty when Error is.
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Loading   bool      `json:"loading"`
	// Live reports whether a status stream is attached.
	Live bool `json:"live"`
	// RegisteredPayIDs is filled once LoadRegisteredPayees has run.
	RegisteredPayIDs []domain.PayeeResolution `json:"registeredPayIds,omitempty"`
}

// Page is one mount of the send-payment workflow.
type Page struct {
	cell   *store.Cell
	deps   Dependencies
	subs   *subscription.Manager
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	mounted    bool
	handle     *subscription.Handle
	machine    *lifecycle.Machine
	lastErr    *Error
	loading    bool
	registered []domain.PayeeResolution

	background sync.WaitGroup
}

// Mount creates a page over cell. A payment that was still in flight when the
// previous page unmounted is tracked again; the backend replays its current
// status on subscribe.
func Mount(cell *store.Cell, deps Dependencies) *Page {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		cell:    cell,
		deps:    deps,
		subs:    subscription.NewManager(deps.Streams),
		ctx:     ctx,
		cancel:  cancel,
		mounted: true,
	}

	session := cell.Read()
	if !session.Tracking() {
		return p
	}
	record := *session.PaymentResult

	switch {
	case lifecycle.AutoCloses(session.CurrentStatus) && !session.MessagesFetched:
		// The terminal event was applied by a process that never got to fetch.
		p.cell.Update(func(s *domain.TrackingSession) { s.MessagesFetched = true })
		p.startFetchRelated(session.Generation, record, domain.StatusEvent{Status: session.CurrentStatus, Message: session.StatusMessage}, false)
	case !session.TrackingUnavailable && !lifecycle.IsTerminal(session.CurrentStatus):
		p.mu.Lock()
		p.attachLocked(session.Generation, record.PaymentID, session.CurrentStatus, true)
		p.mu.Unlock()
		log.Printf("level=info component=send_page msg=\"resumed tracking\" payment_id=%s status=%s", record.PaymentID, session.CurrentStatus)
	}
	return p
}

// Cell is the cell the page is mounted on.
func (p *Page) Cell() *store.Cell { return p.cell }

// Unmount closes the page's stream. The cell keeps the session, and a related
// messages fetch already started still completes into it.
func (p *Page) Unmount() {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = false
	h := p.detachLocked()
	p.mu.Unlock()

	if h != nil {
		h.Close()
	}
	p.subs.Close()
	p.cancel()
}

// Mounted reports whether Unmount has not been called yet.
func (p *Page) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mounted
}

// WaitBackground blocks until background fetches and publishes have finished.
func (p *Page) WaitBackground() {
	p.background.Wait()
}

// Snapshot returns the current view.
func (p *Page) Snapshot() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	session := p.cell.Read()
	view := View{
		Session: session,
		Loading: p.loading,
		Live:    p.handle != nil && !p.handle.Closed(),
	}
	if session.Tracking() {
		view.Progress = lifecycle.Progress(session.CurrentStatus)
		if session.CurrentStatus != "" {
			view.Badge = lifecycle.BadgeClass(session.CurrentStatus)
		}
	}
	switch {
	case p.lastErr != nil:
		view.Error = p.lastErr.Error()
		view.ErrorKind = p.lastErr.Kind
	case session.TrackingUnavailable:
		view.Error = subscription.ErrTrackingUnavailable.Error()
		view.ErrorKind = KindStream
	}
	if p.registered != nil {
		view.RegisteredPayIDs = append([]domain.PayeeResolution(nil), p.registered...)
	}
	return view
}

// Change sets one form field by its name. Changing the PayID type or value
// drops the resolved payee.
func (p *Page) Change(field, value string) error {
	setter, ok := formFields[field]
	if !ok {
		return validationf("unknown form field %q", field)
	}
	p.cell.Update(func(s *domain.TrackingSession) {
		before := s.Form
		setter(&s.Form, value)
		if s.Form.PayIDType != before.PayIDType || s.Form.PayIDValue != before.PayIDValue {
			s.ResolvedPayee = nil
		}
	})
	return nil
}

// SetMode switches between PayID and BSB addressing.
func (p *Page) SetMode(mode domain.Mode) error {
	if mode != domain.ModePayID && mode != domain.ModeBSB {
		return validationf("unknown mode %q", mode)
	}
	p.cell.Update(func(s *domain.TrackingSession) { s.Mode = mode })
	return nil
}

// SetPayeeSource switches between the registered PayID picker and free entry.
// Switching resets the PayID type and value to their defaults.
func (p *Page) SetPayeeSource(source domain.PayeeSource) error {
	if source != domain.PayeeSourceNew && source != domain.PayeeSourceExisting {
		return validationf("unknown payee source %q", source)
	}
	p.cell.Update(func(s *domain.TrackingSession) {
		if s.UI.PayeeSource == source {
			return
		}
		s.UI.PayeeSource = source
		s.Form.PayIDType = domain.DefaultForm().PayIDType
		s.Form.PayIDValue = ""
		s.ResolvedPayee = nil
	})
	return nil
}

// ToggleMessage expands the message with id, or collapses it if it is already expanded.
func (p *Page) ToggleMessage(id int64) {
	p.cell.Update(func(s *domain.TrackingSession) {
		if s.UI.ExpandedMessageID == id {
			s.UI.ExpandedMessageID = 0
			return
		}
		s.UI.ExpandedMessageID = id
	})
}

// Reset stops tracking and returns the slot to a fresh form.
func (p *Page) Reset() {
	p.mu.Lock()
	h := p.detachLocked()
	p.cell.Reset()
	p.lastErr = nil
	p.loading = false
	p.machine = nil
	p.mu.Unlock()

	if h != nil {
		h.Close()
	}
	log.Printf("level=info component=send_page msg=\"session reset\" key=%s", p.cell.Key())
}

func (p *Page) recordError(err error) {
	appErr, ok := err.(*Error)
	if !ok {
		return
	}
	p.mu.Lock()
	p.lastErr = appErr
	p.mu.Unlock()
}

// detachLocked forgets the live handle so its callbacks become no-ops. The
// caller closes the returned handle after releasing p.mu.
func (p *Page) detachLocked() *subscription.Handle {
	h := p.handle
	p.handle = nil
	return h
}

func (p *Page) slogHandler() slog.Handler {
	if p.deps.Logger != nil {
		return p.deps.Logger.Handler()
	}
	return nil
}

func (p *Page) notify(session domain.TrackingSession) {
	if p.deps.OnChange != nil {
		p.deps.OnChange(session)
	}
}

func (p *Page) publish(outcome domain.TrackingOutcome) {
	if p.deps.Outcomes == nil {
		return
	}
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.deps.Outcomes.PublishTrackingOutcome(ctx, outcome); err != nil {
			log.Printf("level=warn component=send_page msg=\"publish tracking outcome failed\" payment_id=%s status=%s err=%v", outcome.PaymentID, outcome.Status, err)
		}
	}()
}

func describe(record domain.PaymentRecord) string {
	return fmt.Sprintf("payment_id=%s end_to_end_id=%s", record.PaymentID, record.EndToEndID)
}
