package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/njabbott/npp-simulation/internal/domain"
)

type stubMirror struct {
	mu       sync.Mutex
	sessions map[string]domain.TrackingSession
	saves    int
	loadErr  error
	deleted  []string
}

func newStubMirror() *stubMirror {
	return &stubMirror{sessions: map[string]domain.TrackingSession{}}
}

func (m *stubMirror) Save(ctx context.Context, key string, session domain.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.sessions[key] = session.Clone()
	return nil
}

func (m *stubMirror) Load(ctx context.Context, key string) (domain.TrackingSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.TrackingSession{}, false, m.loadErr
	}
	s, ok := m.sessions[key]
	return s.Clone(), ok, nil
}

func (m *stubMirror) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func trackedSession() domain.TrackingSession {
	s := domain.DefaultSession()
	s.Form.Amount = "100.00"
	s.Form.PayIDValue = "+61412345678"
	s.ResolvedPayee = &domain.PayeeResolution{PayIDType: domain.PayIDPhone, Value: "+61412345678", DisplayName: "John Smith"}
	s.PaymentResult = &domain.PaymentRecord{PaymentID: "p1", Amount: decimal.RequireFromString("100.00"), Status: domain.StatusInitiated}
	s.CurrentStatus = domain.StatusSettled
	s.StatusMessage = "Settled via FSS"
	s.RelatedMessages = []domain.MessageRecord{{ID: 1, MessageType: "PACS_008", PaymentID: "p1"}}
	s.UI.ExpandedMessageID = 1
	return s
}

func TestReadOnFirstVisitReturnsDefaults(t *testing.T) {
	cell, _ := NewRegistry("", nil).Cell(SlotSend)
	if got := cell.Read(); !reflect.DeepEqual(got, domain.DefaultSession()) {
		t.Fatalf("expected default session, got %+v", got)
	}
}

func TestWriteReadRoundTripIsDeepEqual(t *testing.T) {
	registry := NewRegistry("", nil)
	cell, _ := registry.Cell(SlotSend)

	written := trackedSession()
	cell.Write(written)

	again, _ := registry.Cell(SlotSend)
	if again != cell {
		t.Fatalf("expected the same cell for the same slot")
	}
	if got := again.Read(); !reflect.DeepEqual(got, written) {
		t.Fatalf("expected round trip to be deep-equal\nwrote %+v\nread  %+v", written, got)
	}
}

func TestReadReturnsIndependentCopy(t *testing.T) {
	cell, _ := NewRegistry("", nil).Cell(SlotSend)
	cell.Write(trackedSession())

	got := cell.Read()
	got.RelatedMessages[0].MessageType = "CAMT_056"
	got.ResolvedPayee.DisplayName = "Mallory"

	again := cell.Read()
	if again.RelatedMessages[0].MessageType != "PACS_008" || again.ResolvedPayee.DisplayName != "John Smith" {
		t.Fatalf("expected stored session to be unaffected by caller mutation, got %+v", again)
	}
}

func TestSlotsAreIsolated(t *testing.T) {
	registry := NewRegistry("", nil)
	send, _ := registry.Cell(SlotSend)
	payid, _ := registry.Cell(SlotPayID)

	send.Write(trackedSession())
	if payid.Read().Tracking() {
		t.Fatalf("expected payid slot untouched by send slot write")
	}
	if _, ok := registry.Cell("unknown"); ok {
		t.Fatalf("expected unknown slot to be absent")
	}
}

func TestResetRestoresDefaultsAndBumpsGeneration(t *testing.T) {
	cell, _ := NewRegistry("", nil).Cell(SlotSend)
	cell.Write(trackedSession())

	reset := cell.Reset()
	if reset.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", reset.Generation)
	}
	reset.Generation = 0
	if !reflect.DeepEqual(reset, domain.DefaultSession()) {
		t.Fatalf("expected defaults after reset, got %+v", reset)
	}
	if cell.Reset().Generation != 2 {
		t.Fatalf("expected generation to keep increasing")
	}
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	cell, _ := NewRegistry("", nil).Cell(SlotSend)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			cell.Update(func(s *domain.TrackingSession) {
				s.RelatedMessages = append(s.RelatedMessages, domain.MessageRecord{ID: id})
			})
		}(int64(i))
	}
	wg.Wait()

	if got := len(cell.Read().RelatedMessages); got != 50 {
		t.Fatalf("expected 50 messages, got %d", got)
	}
}

func TestMirrorRestoresSessionForNewRegistry(t *testing.T) {
	mirror := newStubMirror()
	first, _ := NewRegistry("ws-1", mirror).Cell(SlotSend)
	first.Write(trackedSession())

	if _, ok := mirror.sessions["ws-1:send"]; !ok {
		t.Fatalf("expected session mirrored under ws-1:send, got keys %v", mirror.sessions)
	}

	restored, _ := NewRegistry("ws-1", mirror).Cell(SlotSend)
	if got := restored.Read(); got.PaymentResult == nil || got.PaymentResult.PaymentID != "p1" {
		t.Fatalf("expected mirrored session to be restored, got %+v", got)
	}

	other, _ := NewRegistry("ws-2", mirror).Cell(SlotSend)
	if other.Read().Tracking() {
		t.Fatalf("expected a different owner to start from defaults")
	}
}

func TestMirrorLoadFailureFallsBackToDefaults(t *testing.T) {
	mirror := newStubMirror()
	mirror.loadErr = errors.New("connection refused")

	cell, _ := NewRegistry("ws-1", mirror).Cell(SlotSend)
	if got := cell.Read(); !reflect.DeepEqual(got, domain.DefaultSession()) {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestDiscardDeletesEveryMirroredSlot(t *testing.T) {
	mirror := newStubMirror()
	registry := NewRegistry("ws-1", mirror)
	registry.Discard(context.Background())

	if len(mirror.deleted) != len(AllSlots) {
		t.Fatalf("expected %d deletes, got %d", len(AllSlots), len(mirror.deleted))
	}
}
