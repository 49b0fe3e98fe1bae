package registry

import (
	"hash/fnv"
	"sync"

	"github.com/fxcobra/salesbot/internal/model"
)

// Record is the transient state of one conversation.
type Record struct {
	Step     model.Step
	Options  []model.CatalogNode // Last rendered list, 1-based for the customer
	Selected *model.CatalogNode  // Node under consideration
	OrderID  string              // Bound order in StepInConversation
}

const stripeCount = 32

// entry pairs a record with the mutex serializing its transitions.
type entry struct {
	mu  sync.Mutex
	rec *Record
}

type stripe struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Registry maps conversation ids to records. Transitions for one
// conversation are serialized through Lock; different conversations
// proceed independently.
type Registry struct {
	stripes [stripeCount]*stripe
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.stripes {
		r.stripes[i] = &stripe{entries: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) stripe(conversationID string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return r.stripes[h.Sum32()%stripeCount]
}

func (r *Registry) entry(conversationID string) *entry {
	s := r.stripe(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[conversationID]
	if !ok {
		e = &entry{}
		s.entries[conversationID] = e
	}
	return e
}

// Lock serializes a transition for one conversation. The returned func
// releases the lock. Entries persist so lock identity is stable for the
// life of the registry.
func (r *Registry) Lock(conversationID string) (unlock func()) {
	e := r.entry(conversationID)
	e.mu.Lock()
	return e.mu.Unlock
}

// Get returns a copy of the conversation record.
func (r *Registry) Get(conversationID string) (Record, bool) {
	s := r.stripe(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[conversationID]
	if !ok || e.rec == nil {
		return Record{}, false
	}
	return *e.rec, true
}

// Put stores the conversation record.
func (r *Registry) Put(conversationID string, rec Record) {
	e := r.entry(conversationID)
	s := r.stripe(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.rec = &rec
}

// Delete clears the conversation record.
func (r *Registry) Delete(conversationID string) {
	s := r.stripe(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[conversationID]; ok {
		e.rec = nil
	}
}

// Len returns the number of conversations with active records.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.stripes {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.rec != nil {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}
