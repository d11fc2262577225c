// Package room implements the rendezvous registry: an in-memory map of room
// ids to two-party sessions with a fixed lifetime.
package room

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrExists   = errors.New("room already exists")
	ErrNotFound = errors.New("room not found")
	ErrFull     = errors.New("room is full")
	ErrOwnRoom  = errors.New("cannot join own room")
	ErrBadID    = errors.New("invalid room id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Room pairs one sender connection with at most one receiver connection.
type Room struct {
	ID        string
	Sender    string
	Receiver  string // empty until joined
	CreatedAt time.Time
}

// Members returns the connection ids present in the room.
func (r Room) Members() []string {
	if r.Receiver == "" {
		return []string{r.Sender}
	}
	return []string{r.Sender, r.Receiver}
}

// Has reports whether conn is a participant.
func (r Room) Has(conn string) bool {
	return conn != "" && (r.Sender == conn || r.Receiver == conn)
}

// Registry owns every room. All mutations go through its mutex.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	rooms map[string]*Room
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry whose rooms expire ttl after creation.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		ttl:   ttl,
		now:   time.Now,
		rooms: make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns a short random room id (8 hex characters).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ValidID reports whether id is acceptable as a room id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Create registers a new room owned by sender. An existing id is never
// overwritten, not even an expired one: it stays taken until the sweep has
// told its members and removed it.
func (r *Registry) Create(id, sender string) (Room, error) {
	if !ValidID(id) {
		return Room{}, ErrBadID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; ok {
		return Room{}, ErrExists
	}
	rm := &Room{ID: id, Sender: sender, CreatedAt: r.now()}
	r.rooms[id] = rm
	return *rm, nil
}

// Join fills the receiver slot. It succeeds at most once per room.
func (r *Registry) Join(id, receiver string) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok || r.expired(rm) {
		return Room{}, ErrNotFound
	}
	if rm.Sender == receiver {
		return Room{}, ErrOwnRoom
	}
	if rm.Receiver != "" {
		return Room{}, ErrFull
	}
	rm.Receiver = receiver
	return *rm, nil
}

// Get returns a copy of the room with the given id.
func (r *Registry) Get(id string) (Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok || r.expired(rm) {
		return Room{}, false
	}
	return *rm, true
}

// Others returns the participants of room id other than conn. It returns nil
// when the room does not exist or conn is not a participant.
func (r *Registry) Others(id, conn string) []string {
	rm, ok := r.Get(id)
	if !ok || !rm.Has(conn) {
		return nil
	}

	var out []string
	for _, m := range rm.Members() {
		if m != conn {
			out = append(out, m)
		}
	}
	return out
}

// Remove deletes a room. Removing a missing room is a no-op.
// It reports whether a room was actually removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		return false
	}
	delete(r.rooms, id)
	return true
}

// Expire removes room id only if it has outlived the TTL.
func (r *Registry) Expire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok || !r.expired(rm) {
		return false
	}
	delete(r.rooms, id)
	return true
}

// Leave removes every room conn participates in and returns them.
func (r *Registry) Leave(conn string) []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Room
	for id, rm := range r.rooms {
		if rm.Has(conn) {
			out = append(out, *rm)
			delete(r.rooms, id)
		}
	}
	return out
}

// Expired returns the rooms whose age exceeds the TTL. They stay registered
// until removed, so the caller can notify participants first.
func (r *Registry) Expired() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Room
	for _, rm := range r.rooms {
		if r.expired(rm) {
			out = append(out, *rm)
		}
	}
	return out
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// expired must be called with mu held.
func (r *Registry) expired(rm *Room) bool {
	return r.now().Sub(rm.CreatedAt) >= r.ttl
}
