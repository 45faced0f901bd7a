/**
 * @description
 * Submission, live tracking and returns for the send page. Stream events are
 * applied through a lifecycle.Machine, and a payment that reaches CONFIRMED or
 * REJECTED has its ISO 20022 messages fetched once.
 *
 * @dependencies
 * - internal/lifecycle: Transition guard.
 * - internal/subscription: Stream handles.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/lifecycle"
	"github.com/njabbott/npp-simulation/internal/subscription"
)

const (
	relatedMessagesTimeout = 30 * time.Second
	publishTimeout         = 10 * time.Second

	returnedMessage = "Payment returned"
	// outcomeUnavailable is published when the stream fails before a terminal status.
	outcomeUnavailable domain.PaymentStatus = "UNAVAILABLE"
)

// Submit validates the form and sends the payment. Any previous result and
// its stream are dropped first. On success the new payment is tracked.
func (p *Page) Submit(ctx context.Context) (*domain.PaymentRecord, error) {
	session := p.cell.Read()
	req, err := BuildRequest(session.Mode, session.Form)
	if err != nil {
		p.recordError(err)
		return nil, err
	}

	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	p.loading = true
	p.lastErr = nil
	p.machine = nil
	old := p.detachLocked()
	cleared := p.cell.Update(func(s *domain.TrackingSession) {
		s.PaymentResult = nil
		s.CurrentStatus = ""
		s.StatusMessage = ""
		s.RelatedMessages = []domain.MessageRecord{}
		s.MessagesFetched = false
		s.TrackingUnavailable = false
		s.UI.ExpandedMessageID = 0
	})
	generation := cleared.Generation
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}

	record, err := p.deps.Backend.SubmitPayment(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cell.Read().Generation != generation {
		log.Printf("level=info component=send_page msg=\"submission completed after reset; result dropped\" err=%v", err)
		return nil, ErrSessionReset
	}
	p.loading = false
	if err != nil {
		appErr := newError(KindSubmission, err)
		p.lastErr = appErr
		return nil, appErr
	}

	p.cell.Update(func(s *domain.TrackingSession) {
		s.PaymentResult = record
		s.CurrentStatus = record.Status
		s.StatusMessage = ""
	})
	log.Printf("level=info component=send_page msg=\"payment submitted\" %s status=%s", describe(*record), record.Status)

	if p.mounted {
		p.attachLocked(generation, record.PaymentID, record.Status, false)
	}
	out := *record
	return &out, nil
}

// Return sends a return request for the tracked payment. Only SETTLED and
// CONFIRMED payments can be returned. The payment moves to RETURNED directly;
// no stream event is expected for it.
func (p *Page) Return(ctx context.Context) (*domain.PaymentRecord, error) {
	session := p.cell.Read()
	if !session.Tracking() {
		err := newError(KindValidation, ErrNothingToReturn)
		p.recordError(err)
		return nil, err
	}
	machine, err := lifecycle.NewMachine(session.CurrentStatus, p.slogHandler())
	if err != nil {
		return nil, err
	}
	if !machine.CanReturn() {
		appErr := newError(KindValidation, ErrNotReturnable)
		p.recordError(appErr)
		return nil, appErr
	}

	record, err := p.deps.Backend.ReturnPayment(ctx, session.PaymentResult.ID)

	p.mu.Lock()
	current := p.cell.Read()
	if current.Generation != session.Generation || !current.Tracking() || current.PaymentResult.PaymentID != session.PaymentResult.PaymentID {
		p.mu.Unlock()
		return nil, ErrSessionReset
	}
	if err != nil {
		appErr := newError(KindSubmission, err)
		p.lastErr = appErr
		p.mu.Unlock()
		return nil, appErr
	}
	if err := machine.Return(); err != nil {
		p.mu.Unlock()
		return nil, newError(KindValidation, err)
	}

	h := p.detachLocked()
	p.machine = machine
	p.lastErr = nil
	stored := p.cell.Update(func(s *domain.TrackingSession) {
		returned := *record
		returned.Status = domain.StatusReturned
		s.PaymentResult = &returned
		s.CurrentStatus = domain.StatusReturned
		s.StatusMessage = returnedMessage
		s.TrackingUnavailable = false
	})
	p.mu.Unlock()

	if h != nil {
		h.Close()
	}
	log.Printf("level=info component=send_page msg=\"payment returned\" %s", describe(*stored.PaymentResult))
	p.publish(outcomeOf(*stored.PaymentResult, domain.StatusEvent{Status: domain.StatusReturned, Message: returnedMessage}, len(stored.RelatedMessages)))

	out := *stored.PaymentResult
	return &out, nil
}

// attachLocked opens the stream for paymentID under a fresh machine. A resumed
// stream only carries the backend's replay text for the status reached while
// the page was away, so its final record is reloaded before messages are fetched.
func (p *Page) attachLocked(generation uint64, paymentID string, status domain.PaymentStatus, resumed bool) {
	machine, err := lifecycle.NewMachine(status, p.slogHandler())
	if err != nil {
		log.Printf("level=error component=send_page msg=\"lifecycle machine unavailable\" payment_id=%s err=%v", paymentID, err)
		return
	}
	h, err := p.subs.Attach(p.ctx, paymentID, subscription.Handlers{
		OnEvent: func(h *subscription.Handle, event domain.StatusEvent) {
			p.applyEvent(h, generation, event, resumed)
		},
		OnError: func(h *subscription.Handle, err error) {
			p.onStreamError(h, generation, err)
		},
	})
	if err != nil {
		log.Printf("level=error component=send_page msg=\"attach status stream failed\" payment_id=%s err=%v", paymentID, err)
		return
	}
	p.machine = machine
	p.handle = h
	log.Printf("level=info component=send_page msg=\"status stream attached\" payment_id=%s handle=%s resumed=%t", paymentID, h.ID(), resumed)
}

func (p *Page) applyEvent(h *subscription.Handle, generation uint64, event domain.StatusEvent, resumed bool) {
	p.mu.Lock()
	if p.handle != h {
		p.mu.Unlock()
		return
	}
	if h.Closed() {
		p.handle = nil
	}
	if err := p.machine.Apply(event.Status); err != nil {
		p.mu.Unlock()
		log.Printf("level=warn component=send_page msg=\"status event ignored\" payment_id=%s handle=%s status=%s err=%v", h.PaymentID(), h.ID(), event.Status, err)
		return
	}

	final := lifecycle.AutoCloses(event.Status)
	applied, fetch := false, false
	stored := p.cell.Update(func(s *domain.TrackingSession) {
		if s.Generation != generation || !s.Tracking() || s.PaymentResult.PaymentID != h.PaymentID() {
			return
		}
		// A repeat of the current status is the subscribe replay; the stored
		// message is kept.
		if s.CurrentStatus != event.Status {
			applied = true
			s.CurrentStatus = event.Status
			s.StatusMessage = event.Message
			s.PaymentResult.Status = event.Status
		}
		if final && !s.MessagesFetched {
			s.MessagesFetched = true
			applied, fetch = true, true
		}
	})
	p.mu.Unlock()

	if !applied {
		return
	}
	if fetch {
		p.startFetchRelated(generation, *stored.PaymentResult, domain.StatusEvent{Status: stored.CurrentStatus, Message: stored.StatusMessage}, resumed)
	}
	p.notify(stored)
}

func (p *Page) onStreamError(h *subscription.Handle, generation uint64, err error) {
	p.mu.Lock()
	if p.handle != h {
		p.mu.Unlock()
		return
	}
	p.handle = nil
	p.lastErr = newError(KindStream, err)
	applied := false
	stored := p.cell.Update(func(s *domain.TrackingSession) {
		if s.Generation != generation || !s.Tracking() || s.PaymentResult.PaymentID != h.PaymentID() {
			return
		}
		applied = true
		s.TrackingUnavailable = true
	})
	p.mu.Unlock()

	if !applied {
		return
	}
	p.notify(stored)
	p.publish(outcomeOf(*stored.PaymentResult, domain.StatusEvent{Status: outcomeUnavailable, Message: err.Error()}, len(stored.RelatedMessages)))
}

// startFetchRelated loads the ISO 20022 messages of a payment that reached a
// terminal status. The fetch is bound to the cell, not the page, so it still
// lands after an unmount. With reload set the payment record is fetched
// again first.
func (p *Page) startFetchRelated(generation uint64, record domain.PaymentRecord, event domain.StatusEvent, reload bool) {
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		p.fetchRelated(generation, record, event, reload)
	}()
}

func (p *Page) fetchRelated(generation uint64, record domain.PaymentRecord, event domain.StatusEvent, reload bool) {
	ctx, cancel := context.WithTimeout(context.Background(), relatedMessagesTimeout)
	defer cancel()

	if reload {
		record, event = p.reloadPayment(ctx, generation, record, event)
	}

	related := []domain.MessageRecord{}
	all, err := p.deps.Backend.ListMessages(ctx)
	if err != nil {
		log.Printf("level=warn component=send_page msg=\"fetch related messages failed\" payment_id=%s err=%v", record.PaymentID, err)
	} else {
		for _, m := range all {
			if m.PaymentID == record.PaymentID {
				related = append(related, m)
			}
		}
		applied := false
		stored := p.cell.Update(func(s *domain.TrackingSession) {
			if s.Generation != generation || !s.Tracking() || s.PaymentResult.PaymentID != record.PaymentID {
				return
			}
			applied = true
			s.RelatedMessages = related
		})
		if applied {
			p.notify(stored)
		} else {
			log.Printf("level=info component=send_page msg=\"related messages dropped; session was reset\" payment_id=%s", record.PaymentID)
		}
	}

	p.publish(outcomeOf(record, event, len(related)))
}

// reloadPayment refreshes the stored record of a payment that finished while
// no page was attached. A rejection shows the backend's reason.
func (p *Page) reloadPayment(ctx context.Context, generation uint64, record domain.PaymentRecord, event domain.StatusEvent) (domain.PaymentRecord, domain.StatusEvent) {
	fresh, err := p.deps.Backend.GetPayment(ctx, record.ID)
	if err != nil {
		log.Printf("level=warn component=send_page msg=\"reload payment failed\" %s err=%v", describe(record), err)
		return record, event
	}

	applied := false
	stored := p.cell.Update(func(s *domain.TrackingSession) {
		if s.Generation != generation || !s.Tracking() || s.PaymentResult.PaymentID != record.PaymentID {
			return
		}
		applied = true
		reloaded := *fresh
		reloaded.Status = s.CurrentStatus
		s.PaymentResult = &reloaded
		if s.CurrentStatus == domain.StatusRejected && reloaded.RejectionReason != "" {
			s.StatusMessage = reloaded.RejectionReason
		}
	})
	if !applied {
		return record, event
	}
	p.notify(stored)
	return *stored.PaymentResult, domain.StatusEvent{Status: stored.CurrentStatus, Message: stored.StatusMessage}
}

func outcomeOf(record domain.PaymentRecord, event domain.StatusEvent, messages int) domain.TrackingOutcome {
	return domain.TrackingOutcome{
		PaymentID:  record.PaymentID,
		EndToEndID: record.EndToEndID,
		Status:     event.Status,
		Message:    event.Message,
		Amount:     record.Amount,
		Messages:   messages,
		OccurredAt: time.Now().UTC(),
	}
}

// IsSessionReset reports whether err only means a completion was dropped.
func IsSessionReset(err error) bool {
	return errors.Is(err, ErrSessionReset)
}
