// Package status tracks the fetch state of each synced resource.
package status

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State is the fetch state of one resource.
type State string

const (
	Idle      State = "IDLE"
	Fetching  State = "FETCHING"
	Succeeded State = "SUCCEEDED"
	Failed    State = "FAILED"
)

// Resources tracked by the sync coordinator.
const (
	ChatList   = "chat_list"
	ChatDetail = "chat_detail"
	Users      = "users"
)

// validTransitions defines allowed state transitions. Idle is re-entered on
// logout.
var validTransitions = map[State][]State{
	Idle:      {Fetching},
	Fetching:  {Succeeded, Failed, Idle},
	Succeeded: {Fetching, Idle},
	Failed:    {Fetching, Idle},
}

// Snapshot is a point-in-time view of a machine.
type Snapshot struct {
	Resource  string    `json:"resource"`
	State     State     `json:"state"`
	FromCache bool      `json:"from_cache"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Machine tracks and enforces the fetch state of one resource. Overlapping
// fetches are counted: the machine leaves Fetching when the last one ends.
type Machine struct {
	mu       sync.RWMutex
	resource string
	current  State
	inflight int
	snap     Snapshot
	// before is the snapshot replaced by the last entry into Fetching.
	before Snapshot
	bus    *bus.Bus
}

// NewMachine creates a machine for resource starting in Idle.
func NewMachine(resource string, b *bus.Bus) *Machine {
	return &Machine{
		resource: resource,
		current:  Idle,
		snap:     Snapshot{Resource: resource, State: Idle},
		bus:      b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state with the outcome of the last fetch.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to, false, "")
}

// Begin marks the start of a fetch.
func (m *Machine) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight++
	if m.current != Fetching {
		m.before = m.snap
		_ = m.transitionLocked(Fetching, false, "")
	}
}

// Abandon ends a fetch whose caller gave up. When no other fetch is in
// flight the machine returns to its state before Begin without publishing.
func (m *Machine) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight > 0 {
		m.inflight--
	}
	if m.inflight > 0 || m.current != Fetching {
		return
	}
	m.current = m.before.State
	m.snap = m.before
}

// Succeed ends a fetch that produced data, fresh or from cache.
func (m *Machine) Succeed(fromCache bool) {
	m.finish(Succeeded, fromCache, "")
}

// Fail ends a fetch that produced nothing.
func (m *Machine) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.finish(Failed, false, msg)
}

// Reset returns the machine to Idle, forgetting the last outcome.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight = 0
	if m.current != Idle {
		_ = m.transitionLocked(Idle, false, "")
	}
}

func (m *Machine) finish(to State, fromCache bool, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight > 0 {
		m.inflight--
	}
	if m.inflight > 0 || m.current != Fetching {
		return
	}
	_ = m.transitionLocked(to, fromCache, errMsg)
}

func (m *Machine) transitionLocked(to State, fromCache bool, errMsg string) error {
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("%s: invalid transition from %s to %s", m.resource, m.current, to)
	}
	from := m.current
	m.current = to
	m.snap = Snapshot{
		Resource:  m.resource,
		State:     to,
		FromCache: fromCache,
		Error:     errMsg,
		UpdatedAt: time.Now(),
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: m.snap.UpdatedAt,
			Payload: StatusChange{
				Resource:  m.resource,
				From:      from,
				To:        to,
				FromCache: fromCache,
				Error:     errMsg,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	Resource  string `json:"resource"`
	From      State  `json:"from"`
	To        State  `json:"to"`
	FromCache bool   `json:"from_cache"`
	Error     string `json:"error,omitempty"`
}

// Registry holds one machine per resource.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*Machine
	bus      *bus.Bus
}

// NewRegistry creates a registry whose machines publish on b.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{machines: make(map[string]*Machine), bus: b}
}

// For returns the machine of resource, creating it on first use.
func (r *Registry) For(resource string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[resource]
	if !ok {
		m = NewMachine(resource, r.bus)
		r.machines[resource] = m
	}
	return m
}

// All returns snapshots of every machine ordered by resource name.
func (r *Registry) All() []Snapshot {
	r.mu.Lock()
	machines := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(machines))
	for _, m := range machines {
		snaps = append(snaps, m.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Resource < snaps[j].Resource })
	return snaps
}

// ResetAll returns every machine to Idle.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.machines {
		m.Reset()
	}
}
