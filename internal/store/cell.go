/**
 * @description
 * Package store holds the per-slot session cells that keep a page's workflow
 * alive across navigation. A Registry is created once per application shell
 * and owns one Cell per page slot; pages are handed their cell on every mount
 * and never allocate one themselves.
 *
 * @dependencies
 * - internal/domain: TrackingSession and its defaults.
 */

package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/njabbott/npp-simulation/internal/domain"
)

// Slot identifies a page position in the shell.
type Slot string

const (
	SlotDashboard  Slot = "dashboard"
	SlotPayID      Slot = "payid"
	SlotSend       Slot = "send"
	SlotPayTo      Slot = "payto"
	SlotSettlement Slot = "settlement"
	SlotMessages   Slot = "messages"
)

// AllSlots lists every slot a Registry creates a cell for.
var AllSlots = []Slot{SlotDashboard, SlotPayID, SlotSend, SlotPayTo, SlotSettlement, SlotMessages}

// ParseSlot validates a slot name taken from a request path.
func ParseSlot(raw string) (Slot, bool) {
	for _, s := range AllSlots {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

const mirrorTimeout = 2 * time.Second

// Cell is the storage for one slot's session. Every write replaces the whole
// session; readers always get a copy.
type Cell struct {
	key    string
	mirror SessionMirror

	mu      sync.Mutex
	loaded  bool
	session domain.TrackingSession
}

func newCell(key string, mirror SessionMirror) *Cell {
	return &Cell{key: key, mirror: mirror, session: domain.DefaultSession()}
}

// Key is the cell's identity in the mirror.
func (c *Cell) Key() string { return c.key }

// Read returns the last written session, or the default session on a first visit.
func (c *Cell) Read() domain.TrackingSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return c.session.Clone()
}

// Write replaces the stored session.
func (c *Cell) Write(session domain.TrackingSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.session = session.Clone()
	c.persistLocked()
}

// Update applies fn to the current session and stores the result as one write.
// It returns the stored session.
func (c *Cell) Update(fn func(s *domain.TrackingSession)) domain.TrackingSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	next := c.session.Clone()
	fn(&next)
	c.session = next
	c.persistLocked()
	return next.Clone()
}

// Reset stores the default session under a new generation.
func (c *Cell) Reset() domain.TrackingSession {
	return c.Update(func(s *domain.TrackingSession) {
		generation := s.Generation + 1
		*s = domain.DefaultSession()
		s.Generation = generation
	})
}

func (c *Cell) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true
	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	session, found, err := c.mirror.Load(ctx, c.key)
	if err != nil {
		log.Printf("level=warn component=session_cell key=%s msg=\"mirror load failed; starting from defaults\" err=%v", c.key, err)
		return
	}
	if found {
		c.session = session
	}
}

func (c *Cell) persistLocked() {
	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := c.mirror.Save(ctx, c.key, c.session); err != nil {
		log.Printf("level=warn component=session_cell key=%s msg=\"mirror save failed\" err=%v", c.key, err)
	}
}

// Registry owns the cells of one application shell.
type Registry struct {
	owner  string
	mirror SessionMirror
	cells  map[Slot]*Cell
}

// NewRegistry creates a cell for every slot. owner scopes the mirror keys and
// may be empty for a single-user shell. A nil mirror keeps cells in memory only.
func NewRegistry(owner string, mirror SessionMirror) *Registry {
	r := &Registry{owner: owner, mirror: mirror, cells: make(map[Slot]*Cell, len(AllSlots))}
	for _, slot := range AllSlots {
		key := string(slot)
		if owner != "" {
			key = owner + ":" + key
		}
		r.cells[slot] = newCell(key, mirror)
	}
	return r
}

// Owner is the id the registry was created for.
func (r *Registry) Owner() string { return r.owner }

// Cell returns the cell for slot. The same cell is returned on every call.
func (r *Registry) Cell(slot Slot) (*Cell, bool) {
	c, ok := r.cells[slot]
	return c, ok
}

// Discard removes every mirrored session of this registry.
func (r *Registry) Discard(ctx context.Context) {
	if r.mirror == nil {
		return
	}
	for _, c := range r.cells {
		if err := r.mirror.Delete(ctx, c.key); err != nil {
			log.Printf("level=warn component=session_cell key=%s msg=\"mirror delete failed\" err=%v", c.key, err)
		}
	}
}
