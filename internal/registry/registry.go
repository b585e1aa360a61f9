// Package registry is the hub: it holds the registered kinds, creates and
// initializes instances atomically, and owns the instance arena.
//
// Enumeration by user is answered from committed events only
// (CommitmentCreation and UserJoined), never from instance state.
package registry

import (
	"sort"

	"github.com/pledgeworks/pledge/internal/canon"
	"github.com/pledgeworks/pledge/internal/commitment"
	"github.com/pledgeworks/pledge/internal/protocol"
)

// Registry is not safe for concurrent use. The engine serializes access.
type Registry struct {
	registrar protocol.Identity
	templates map[protocol.Kind]commitment.Template
	arena     []*commitment.Commitment
	byUser    map[protocol.Identity][]Entry
}

// Entry is one creation or join record in a user's enumeration. Every
// field comes from the committed event.
type Entry struct {
	ID     uint64        `json:"id"`
	Kind   protocol.Kind `json:"kind"`
	Handle string        `json:"handle"`
	Seq    int64         `json:"seq"`
	Index  int           `json:"index"`
	Joined bool          `json:"joined,omitempty"`
}

// New creates an empty registry administered by registrar.
func New(registrar protocol.Identity) *Registry {
	return &Registry{
		registrar: registrar,
		templates: make(map[protocol.Kind]commitment.Template),
		byUser:    make(map[protocol.Identity][]Entry),
	}
}

// Registrar returns the identity allowed to register kinds.
func (r *Registry) Registrar() protocol.Identity {
	return r.registrar
}

// RegisterKind adds a template. A kind registers once.
func (r *Registry) RegisterKind(call *protocol.Call, t commitment.Template) error {
	if _, exists := r.templates[t.Kind]; exists {
		return protocol.Errorf(protocol.ErrAlreadyRegistered, "kind %s", t.Kind)
	}
	if call.Caller != r.registrar {
		return protocol.Errorf(protocol.ErrUnauthorized, "%s is not the registrar", call.Caller)
	}
	if t.Kind == "" {
		return protocol.Errorf(protocol.ErrInvalidPayload, "template has no kind")
	}
	r.templates[t.Kind] = t
	call.Effects.Emit(protocol.Event{
		Type:  protocol.EventKindRegistered,
		Kind:  t.Kind,
		Actor: call.Caller,
	})
	return nil
}

// Template returns the registered template for kind.
func (r *Registry) Template(kind protocol.Kind) (commitment.Template, bool) {
	t, ok := r.templates[kind]
	return t, ok
}

// Kinds lists registered kinds in name order.
func (r *Registry) Kinds() []protocol.Kind {
	out := make([]protocol.Kind, 0, len(r.templates))
	for k := range r.templates {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Create instantiates kind and initializes it with payload in one step.
// On failure nothing is kept: no arena slot, no buffered effects.
func (r *Registry) Create(call *protocol.Call, kind protocol.Kind, payload []byte) (uint64, error) {
	t, ok := r.templates[kind]
	if !ok {
		return 0, protocol.Errorf(protocol.ErrKindNotRegistered, "kind %s", kind)
	}

	id := r.NextID()
	handle := canon.InstanceHandle(string(kind), id, string(call.Caller))
	c := t.Instantiate(id, handle)

	events, movements := len(call.Effects.Events), len(call.Effects.Movements)
	call.Effects.Emit(protocol.Event{
		Type:         protocol.EventCommitmentCreation,
		CommitmentID: id,
		Kind:         kind,
		Actor:        call.Caller,
		Handle:       handle,
	})
	if err := c.Init(call, payload); err != nil {
		call.Effects.Events = call.Effects.Events[:events]
		call.Effects.Movements = call.Effects.Movements[:movements]
		return 0, err
	}

	r.arena = append(r.arena, c)
	return id, nil
}

// Get returns the instance with id.
func (r *Registry) Get(id uint64) (*commitment.Commitment, error) {
	if id >= uint64(len(r.arena)) {
		return nil, protocol.Errorf(protocol.ErrUnknownCommitment, "commitment %d", id)
	}
	return r.arena[id], nil
}

// NextID is the id the next successful create will get.
func (r *Registry) NextID() uint64 {
	return uint64(len(r.arena))
}

// All returns every instance in id order.
func (r *Registry) All() []*commitment.Commitment {
	return append([]*commitment.Commitment(nil), r.arena...)
}

// Index feeds committed events into the per-user enumeration.
func (r *Registry) Index(events []protocol.Event) {
	for _, e := range events {
		switch e.Type {
		case protocol.EventCommitmentCreation, protocol.EventUserJoined:
			r.byUser[e.Actor] = append(r.byUser[e.Actor], Entry{
				ID:     e.CommitmentID,
				Kind:   e.Kind,
				Handle: e.Handle,
				Seq:    e.Seq,
				Index:  e.Index,
				Joined: e.Type == protocol.EventUserJoined,
			})
		}
	}
}

// CommitmentsOf merges the creations and joins of user in (seq, index)
// order, oldest first.
func (r *Registry) CommitmentsOf(user protocol.Identity) []Entry {
	out := append([]Entry(nil), r.byUser[user]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// MostRecent returns the last commitment the user created or joined.
func (r *Registry) MostRecent(user protocol.Identity) (Entry, bool) {
	entries := r.CommitmentsOf(user)
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[len(entries)-1], true
}
