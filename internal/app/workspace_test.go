package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/store"
)

func newTestWorkspaces(t *testing.T) (*Workspaces, *harness, *time.Time) {
	t.Helper()
	h := newHarness(t)
	ws := NewWorkspaces(h.deps, nil)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ws.now = func() time.Time { return now }
	t.Cleanup(ws.Close)
	return ws, h, &now
}

func TestWorkspacePageIsStableUntilRemount(t *testing.T) {
	ws, _, _ := newTestWorkspaces(t)
	id := ws.Create()

	first, err := ws.Page(id, store.SlotSend)
	if err != nil {
		t.Fatalf("expected page, got %v", err)
	}
	again, _ := ws.Page(id, store.SlotSend)
	if again != first {
		t.Fatalf("expected the mounted page to be reused")
	}
	if err := first.Change("amount", "42.00"); err != nil {
		t.Fatalf("expected change, got %v", err)
	}

	remounted, err := ws.Mount(id, store.SlotSend)
	if err != nil {
		t.Fatalf("expected remount, got %v", err)
	}
	if remounted == first || first.Mounted() {
		t.Fatalf("expected previous page unmounted and replaced")
	}
	if got := remounted.Snapshot().Session.Form.Amount; got != "42.00" {
		t.Fatalf("expected form restored from the cell, got %q", got)
	}
}

func TestWorkspacesAreIsolated(t *testing.T) {
	ws, _, _ := newTestWorkspaces(t)
	a, b := ws.Create(), ws.Create()

	pageA, _ := ws.Page(a, store.SlotSend)
	if err := pageA.SetMode(domain.ModeBSB); err != nil {
		t.Fatalf("expected mode change, got %v", err)
	}
	pageB, _ := ws.Page(b, store.SlotSend)
	if got := pageB.Snapshot().Session.Mode; got != domain.ModePayID {
		t.Fatalf("expected workspace b untouched, got %s", got)
	}
}

func TestUnknownWorkspace(t *testing.T) {
	ws, _, _ := newTestWorkspaces(t)
	if _, err := ws.Page("not-a-uuid", store.SlotSend); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("expected ErrWorkspaceNotFound, got %v", err)
	}
	if _, err := ws.Open("3f2b8c1e-6d1a-4a7e-9d7c-2b4f5e6a7b8c"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("expected unknown id rejected without a mirror, got %v", err)
	}
}

func TestEvictIdleUnmountsPages(t *testing.T) {
	ws, h, now := newTestWorkspaces(t)
	stale := ws.Create()
	page, _ := ws.Page(stale, store.SlotSend)
	fillPayIDForm(t, page)
	if _, err := page.Submit(context.Background()); err != nil {
		t.Fatalf("expected submit, got %v", err)
	}
	stream := h.source.next(t)

	*now = now.Add(20 * time.Minute)
	fresh := ws.Create()

	if evicted := ws.EvictIdle(context.Background(), 15*time.Minute); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if !stream.isClosed() || page.Mounted() {
		t.Fatalf("expected evicted page unmounted and its stream closed")
	}
	if _, err := ws.Page(stale, store.SlotSend); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("expected evicted workspace gone, got %v", err)
	}
	if _, err := ws.Page(fresh, store.SlotSend); err != nil {
		t.Fatalf("expected fresh workspace kept, got %v", err)
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	ws, _, _ := newTestWorkspaces(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := NewSweeper(ws, logger, "every now and then", time.Minute).Start(); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}

	sweeper := NewSweeper(ws, logger, "", time.Minute)
	if err := sweeper.Start(); err != nil {
		t.Fatalf("expected default schedule to start, got %v", err)
	}
	<-sweeper.Stop().Done()
}
