package commitment

import (
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/schedule"
)

// Template is the immutable configuration shared by every instance of a
// kind. Instances copy it; none of its fields change after registration.
type Template struct {
	Kind        protocol.Kind    `json:"kind"`
	Name        string           `json:"name"`
	Schedule    schedule.Variant `json:"schedule"`
	Suspendable bool             `json:"suspendable,omitempty"`
	Staked      bool             `json:"staked,omitempty"`
	Partner     bool             `json:"partner,omitempty"`
	Timelock    bool             `json:"timelock,omitempty"`
}

// Recurring reports whether confirmations keep instances active.
func (t Template) Recurring() bool {
	return t.Schedule == schedule.VariantAlarm
}

// Instantiate creates a fresh, uninitialized instance.
func (t Template) Instantiate(id uint64, handle string) *Commitment {
	return New(t, id, handle)
}

var catalog = []Template{
	{
		Kind:     protocol.KindBase,
		Name:     "Base commitment",
		Schedule: schedule.VariantNone,
	},
	{
		Kind:     protocol.KindDeadline,
		Name:     "Deadline task",
		Schedule: schedule.VariantDeadline,
	},
	{
		Kind:        protocol.KindAlarm,
		Name:        "Recurring alarm",
		Schedule:    schedule.VariantAlarm,
		Suspendable: true,
	},
	{
		Kind:     protocol.KindTimelockingDeadlineTask,
		Name:     "Timelocking deadline task",
		Schedule: schedule.VariantDeadline,
		Staked:   true,
		Timelock: true,
	},
	{
		Kind:     protocol.KindPartnerAlarmClock,
		Name:     "Partner alarm clock",
		Schedule: schedule.VariantAlarm,
		Staked:   true,
		Partner:  true,
	},
}

// Builtin returns the built-in template for kind.
func Builtin(kind protocol.Kind) (Template, bool) {
	for _, t := range catalog {
		if t.Kind == kind {
			return t, true
		}
	}
	return Template{}, false
}

// Catalog returns a copy of all built-in templates.
func Catalog() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}
