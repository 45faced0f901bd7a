/**
 * @description
 * Package subscription owns the live status stream of a tracked payment. A
 * Manager allows at most one open stream at a time and hands the caller an
 * explicit Handle for it. Closing a handle unregisters its handlers before the
 * connection is released, so nothing is delivered once Close has returned.
 *
 * @notes
 * - Streams are never retried. A transport failure closes the handle and is
 *   reported once through OnError as ErrTrackingUnavailable.
 * - CONFIRMED and REJECTED close the handle on their own. The final event is
 *   still delivered.
 */

package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/lifecycle"
)

var (
	// ErrAlreadyAttached is returned when Attach is called while a stream is open.
	ErrAlreadyAttached = errors.New("a status stream is already attached")
	// ErrTrackingUnavailable wraps every transport failure passed to OnError.
	ErrTrackingUnavailable = errors.New("tracking unavailable")
)

// Stream is an open status event stream.
type Stream interface {
	// Next blocks until an event arrives or the stream ends.
	Next() (domain.StatusEvent, error)
	Close() error
}

// Source opens status streams.
type Source interface {
	OpenStatusStream(ctx context.Context, paymentID string) (Stream, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, paymentID string) (Stream, error)

func (f SourceFunc) OpenStatusStream(ctx context.Context, paymentID string) (Stream, error) {
	return f(ctx, paymentID)
}

// Handlers receive what a handle delivers. Both run on the handle's own
// goroutine and must not call Close on the same handle.
type Handlers struct {
	OnEvent func(h *Handle, event domain.StatusEvent)
	OnError func(h *Handle, err error)
}

// Manager hands out at most one live Handle at a time.
type Manager struct {
	source Source

	mu     sync.Mutex
	active *Handle
}

// NewManager creates a manager that opens streams from source.
func NewManager(source Source) *Manager {
	return &Manager{source: source}
}

// Attach starts a stream for paymentID. The connection is opened on the
// handle's goroutine, so Attach itself never blocks on the network; a failed
// connect is reported through OnError.
func (m *Manager) Attach(ctx context.Context, paymentID string, handlers Handlers) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && !m.active.Closed() {
		return nil, fmt.Errorf("%w: payment %s", ErrAlreadyAttached, m.active.paymentID)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:        uuid.NewString(),
		paymentID: paymentID,
		handlers:  handlers,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.active = h

	go h.pump(streamCtx, m.source)
	return h, nil
}

// Active returns the live handle, or nil.
func (m *Manager) Active() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Closed() {
		return nil
	}
	return m.active
}

// Close closes the live handle, if any. It is safe to call repeatedly.
func (m *Manager) Close() {
	m.mu.Lock()
	h := m.active
	m.active = nil
	m.mu.Unlock()

	if h != nil {
		h.Close()
	}
}

// Handle is the caller's ownership of one stream.
type Handle struct {
	id        string
	paymentID string
	cancel    context.CancelFunc
	done      chan struct{}

	// deliverMu is held while a handler runs. Close takes it to wait out an
	// in-flight delivery before returning.
	deliverMu sync.Mutex
	handlers  Handlers
	closed    atomic.Bool

	streamMu sync.Mutex
	stream   Stream
}

// ID identifies the handle in logs.
func (h *Handle) ID() string { return h.id }

// PaymentID is the payment the handle tracks.
func (h *Handle) PaymentID() string { return h.paymentID }

// Closed reports whether the handle no longer delivers events.
func (h *Handle) Closed() bool { return h.closed.Load() }

// Done is closed when the handle's goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close unregisters the handlers and then releases the connection. It must not
// be called from inside a handler of the same handle.
func (h *Handle) Close() {
	h.deliverMu.Lock()
	already := h.closed.Swap(true)
	h.handlers = Handlers{}
	h.deliverMu.Unlock()

	if !already {
		log.Printf("level=info component=subscription msg=\"stream closed\" handle_id=%s payment_id=%s", h.id, h.paymentID)
	}
	h.release()
}

func (h *Handle) release() {
	h.cancel()
	h.streamMu.Lock()
	s := h.stream
	h.stream = nil
	h.streamMu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

func (h *Handle) pump(ctx context.Context, source Source) {
	defer close(h.done)

	stream, err := source.OpenStatusStream(ctx, h.paymentID)
	if err != nil {
		h.fail(fmt.Errorf("%w: %v", ErrTrackingUnavailable, err))
		return
	}

	h.streamMu.Lock()
	if h.closed.Load() {
		h.streamMu.Unlock()
		_ = stream.Close()
		return
	}
	h.stream = stream
	h.streamMu.Unlock()

	log.Printf("level=info component=subscription msg=\"stream attached\" handle_id=%s payment_id=%s", h.id, h.paymentID)

	for {
		event, err := stream.Next()
		if err != nil {
			h.fail(fmt.Errorf("%w: %v", ErrTrackingUnavailable, err))
			return
		}
		if !h.deliver(event) {
			return
		}
	}
}

// deliver forwards one event and reports whether the pump should continue.
func (h *Handle) deliver(event domain.StatusEvent) bool {
	h.deliverMu.Lock()
	if h.closed.Load() {
		h.deliverMu.Unlock()
		return false
	}

	onEvent := h.handlers.OnEvent
	final := lifecycle.AutoCloses(event.Status)
	if final {
		h.closed.Store(true)
		h.handlers = Handlers{}
	}
	if onEvent != nil {
		onEvent(h, event)
	}
	h.deliverMu.Unlock()

	if final {
		log.Printf("level=info component=subscription msg=\"terminal status received; stream closed\" handle_id=%s payment_id=%s status=%s", h.id, h.paymentID, event.Status)
		h.release()
		return false
	}
	return true
}

// fail closes the handle after a transport failure and reports it once.
func (h *Handle) fail(err error) {
	h.deliverMu.Lock()
	if h.closed.Load() {
		h.deliverMu.Unlock()
		return
	}
	h.closed.Store(true)
	onError := h.handlers.OnError
	h.handlers = Handlers{}
	if onError != nil {
		onError(h, err)
	}
	h.deliverMu.Unlock()

	log.Printf("level=warn component=subscription msg=\"status stream failed; not retrying\" handle_id=%s payment_id=%s err=%v", h.id, h.paymentID, err)
	h.release()
}
