/**
 * @description
 * Workspaces give every browser session of the shell its own store.Registry
 * and its mounted pages. A workspace that sits idle is evicted by the Sweeper.
 *
 * @dependencies
 * - github.com/google/uuid: Workspace ids.
 * - internal/store: Registries and the optional session mirror.
 */

package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/njabbott/npp-simulation/internal/store"
)

// ErrWorkspaceNotFound is returned for an unknown or evicted workspace id.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// Workspaces holds one application shell per browser workspace. Each shell has
// its own Registry, created when the workspace is, and at most one mounted
// page per slot.
type Workspaces struct {
	deps   Dependencies
	mirror store.SessionMirror
	now    func() time.Time

	mu     sync.Mutex
	shells map[string]*workspace
}

type workspace struct {
	registry *store.Registry
	pages    map[store.Slot]*Page
	lastSeen time.Time
}

// NewWorkspaces creates an empty set. mirror may be nil.
func NewWorkspaces(deps Dependencies, mirror store.SessionMirror) *Workspaces {
	return &Workspaces{
		deps:   deps,
		mirror: mirror,
		now:    time.Now,
		shells: make(map[string]*workspace),
	}
}

// Create starts a new workspace and returns its id.
func (w *Workspaces) Create() string {
	id := uuid.NewString()
	w.mu.Lock()
	w.shells[id] = &workspace{
		registry: store.NewRegistry(id, w.mirror),
		pages:    make(map[store.Slot]*Page),
		lastSeen: w.now(),
	}
	w.mu.Unlock()
	log.Printf("level=info component=workspaces msg=\"workspace created\" workspace_id=%s", id)
	return id
}

// Open returns the workspace's registry. A well-formed id that is not held in
// memory is recreated so that a mirrored session can be restored after a restart.
func (w *Workspaces) Open(id string) (*store.Registry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, err := w.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return ws.registry, nil
}

// Page returns the page mounted on slot, mounting one if none is.
func (w *Workspaces) Page(id string, slot store.Slot) (*Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, err := w.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if page, ok := ws.pages[slot]; ok {
		return page, nil
	}
	return w.mountLocked(ws, slot)
}

// Mount mounts a fresh page on slot, unmounting the one already there.
func (w *Workspaces) Mount(id string, slot store.Slot) (*Page, error) {
	w.mu.Lock()
	ws, err := w.lookupLocked(id)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	previous := ws.pages[slot]
	delete(ws.pages, slot)
	w.mu.Unlock()

	if previous != nil {
		previous.Unmount()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if page, ok := ws.pages[slot]; ok {
		return page, nil
	}
	return w.mountLocked(ws, slot)
}

// Unmount unmounts the page on slot, if any. The slot's session stays in its cell.
func (w *Workspaces) Unmount(id string, slot store.Slot) error {
	w.mu.Lock()
	ws, err := w.lookupLocked(id)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	page := ws.pages[slot]
	delete(ws.pages, slot)
	w.mu.Unlock()

	if page != nil {
		page.Unmount()
	}
	return nil
}

// EvictIdle drops every workspace not used for longer than idle. Its pages are
// unmounted and its mirrored sessions deleted. It returns how many were evicted.
func (w *Workspaces) EvictIdle(ctx context.Context, idle time.Duration) int {
	cutoff := w.now().Add(-idle)

	w.mu.Lock()
	var evicted []*workspace
	for id, ws := range w.shells {
		if ws.lastSeen.Before(cutoff) {
			evicted = append(evicted, ws)
			delete(w.shells, id)
		}
	}
	w.mu.Unlock()

	for _, ws := range evicted {
		for _, page := range ws.pages {
			page.Unmount()
		}
		ws.registry.Discard(ctx)
		log.Printf("level=info component=workspaces msg=\"idle workspace evicted\" workspace_id=%s", ws.registry.Owner())
	}
	return len(evicted)
}

// Close unmounts every page of every workspace. Mirrored sessions are kept.
func (w *Workspaces) Close() {
	w.mu.Lock()
	var pages []*Page
	for _, ws := range w.shells {
		for slot, page := range ws.pages {
			pages = append(pages, page)
			delete(ws.pages, slot)
		}
	}
	w.mu.Unlock()

	for _, page := range pages {
		page.Unmount()
	}
}

// Len is the number of live workspaces.
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.shells)
}

func (w *Workspaces) lookupLocked(id string) (*workspace, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrWorkspaceNotFound
	}
	ws, ok := w.shells[id]
	if !ok {
		if w.mirror == nil {
			return nil, ErrWorkspaceNotFound
		}
		ws = &workspace{
			registry: store.NewRegistry(id, w.mirror),
			pages:    make(map[store.Slot]*Page),
		}
		w.shells[id] = ws
	}
	ws.lastSeen = w.now()
	return ws, nil
}

func (w *Workspaces) mountLocked(ws *workspace, slot store.Slot) (*Page, error) {
	cell, ok := ws.registry.Cell(slot)
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	page := Mount(cell, w.deps)
	ws.pages[slot] = page
	return page, nil
}
