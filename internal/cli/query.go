package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pledgeworks/pledge/internal/commitment"
	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/protocol"
)

// StatusReport is what status prints for one commitment. Fields that do
// not apply to the commitment's kind are omitted.
type StatusReport struct {
	commitment.View
	Missed             *uint64             `json:"missed,omitempty"`
	TimeToNextDeadline *int64              `json:"time_to_next_deadline,omitempty"`
	UnlockAt           *protocol.Timestamp `json:"unlock_at,omitempty"`
	Locked             bool                `json:"locked,omitempty"`
	Standing           map[string]int64    `json:"standing,omitempty"`
	Now                protocol.Timestamp  `json:"now"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commitment %d (%s)\n", r.ID, r.Kind)
	fmt.Fprintf(&b, "  status: %s\n", r.Status)
	fmt.Fprintf(&b, "  owner:  %s", r.Owner)
	if r.Name != "" {
		fmt.Fprintf(&b, "\n  name:   %s", r.Name)
	}
	if r.Missed != nil {
		fmt.Fprintf(&b, "\n  missed: %d", *r.Missed)
	}
	if r.TimeToNextDeadline != nil {
		fmt.Fprintf(&b, "\n  next deadline in: %ds", *r.TimeToNextDeadline)
	}
	if r.UnlockAt != nil {
		state := "unlocked"
		if r.Locked {
			state = "locked"
		}
		fmt.Fprintf(&b, "\n  stake %s, unlock at %d", state, *r.UnlockAt)
	}
	who := make([]string, 0, len(r.Standing))
	for p := range r.Standing {
		who = append(who, p)
	}
	sort.Strings(who)
	for _, p := range who {
		fmt.Fprintf(&b, "\n  standing %s: %d", p, r.Standing[p])
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a commitment's status, misses, next deadline and unlock time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := newFormatter(cmd, opts)

			s, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return out.Fail("open journal", err)
			}
			defer s.Close()

			report, err := buildStatus(s.engine, id)
			if err != nil {
				return out.Fail("status", err)
			}
			return out.Success(report)
		},
	}
}

func buildStatus(eng *engine.Engine, id uint64) (StatusReport, error) {
	view, err := eng.Commitment(id)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{View: view, Now: eng.Now()}

	if missed, err := eng.MissedDeadlines(id, ""); err == nil {
		report.Missed = &missed
	}
	if ttl, err := eng.TimeToNextDeadline(id, ""); err == nil && view.Kind != protocol.KindBase {
		report.TimeToNextDeadline = &ttl
	}
	if unlock, locked, err := eng.UnlockTime(id, "", ""); err == nil && unlock != 0 {
		report.UnlockAt = &unlock
		report.Locked = locked
	}
	if view.Partner != "" && view.Started {
		report.Standing = make(map[string]int64, len(view.Participants))
		for _, p := range view.Participants {
			if standing, err := eng.BetStanding(id, p.Identity); err == nil {
				report.Standing[string(p.Identity)] = standing
			}
		}
	}
	return report, nil
}

// ListEntry is one row of list output.
type ListEntry struct {
	ID     uint64            `json:"id"`
	Kind   protocol.Kind     `json:"kind"`
	Handle string            `json:"handle"`
	Status protocol.Status   `json:"status"`
	Owner  protocol.Identity `json:"owner"`
	Seq    int64             `json:"seq,omitempty"`
	Joined bool              `json:"joined,omitempty"`
}

// ListResult is the list command's output.
type ListResult struct {
	Identity    protocol.Identity `json:"identity,omitempty"`
	Commitments []ListEntry       `json:"commitments"`
	MostRecent  *uint64           `json:"most_recent,omitempty"`
}

func (r ListResult) String() string {
	if len(r.Commitments) == 0 {
		return "No commitments."
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tOWNER\tJOINED")
	for _, c := range r.Commitments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n", c.ID, c.Kind, c.Status, c.Owner, c.Joined)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [identity]",
		Short: "List commitments created or joined by an identity (default: all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)

			s, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return out.Fail("open journal", err)
			}
			defer s.Close()

			var who protocol.Identity
			if len(args) == 1 {
				who = protocol.Identity(args[0])
			}
			return out.Success(buildList(s.engine, who))
		},
	}
}

func buildList(eng *engine.Engine, who protocol.Identity) ListResult {
	result := ListResult{Identity: who, Commitments: []ListEntry{}}

	if who == "" {
		for _, v := range eng.Commitments() {
			result.Commitments = append(result.Commitments, ListEntry{
				ID: v.ID, Kind: v.Kind, Handle: v.Handle, Status: v.Status, Owner: v.Owner,
			})
		}
		return result
	}

	// Identity, kind, handle and order come from the creation and join log.
	for _, e := range eng.CommitmentsOf(who) {
		row := ListEntry{ID: e.ID, Kind: e.Kind, Handle: e.Handle, Seq: e.Seq, Joined: e.Joined}
		if status, err := eng.Status(e.ID); err == nil {
			row.Status = status
		}
		if owner, err := eng.Owner(e.ID); err == nil {
			row.Owner = owner
		}
		result.Commitments = append(result.Commitments, row)
	}
	if recent, ok := eng.MostRecent(who); ok {
		result.MostRecent = &recent.ID
	}
	return result
}

// KindEntry is one row of kinds output.
type KindEntry struct {
	Kind       protocol.Kind `json:"kind"`
	Name       string        `json:"name"`
	Registered bool          `json:"registered"`
	Staked     bool          `json:"staked,omitempty"`
}

// KindsResult is the kinds command's output.
type KindsResult struct {
	Kinds []KindEntry `json:"kinds"`
}

func (r KindsResult) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tREGISTERED\tSTAKED\tNAME")
	for _, k := range r.Kinds {
		fmt.Fprintf(w, "%s\t%v\t%v\t%s\n", k.Kind, k.Registered, k.Staked, k.Name)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// NewKindsCommand creates the kinds command.
func NewKindsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the built-in kinds and whether the journal has registered them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)

			s, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return out.Fail("open journal", err)
			}
			defer s.Close()

			registered := make(map[protocol.Kind]bool)
			for _, k := range s.engine.Kinds() {
				registered[k] = true
			}
			result := KindsResult{}
			for _, t := range commitment.Catalog() {
				result.Kinds = append(result.Kinds, KindEntry{
					Kind:       t.Kind,
					Name:       t.Name,
					Registered: registered[t.Kind],
					Staked:     t.Staked,
				})
			}
			return out.Success(result)
		},
	}
}
