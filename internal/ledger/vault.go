// Package ledger tracks where stake is: in escrow accounts, or paid out to
// parties. It is the single place stake movements are applied.
package ledger

import (
	"fmt"
	"math"
	"sort"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// Vault holds escrow balances per account and running totals per party.
//
// Invariant: sum(Deposited) == sum(Paid) + sum(Escrow).
type Vault struct {
	escrow    map[string]protocol.Amount
	deposited map[protocol.Identity]protocol.Amount
	paid      map[protocol.Identity]protocol.Amount
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		escrow:    make(map[string]protocol.Amount),
		deposited: make(map[protocol.Identity]protocol.Amount),
		paid:      make(map[protocol.Identity]protocol.Amount),
	}
}

// Apply applies movements in order, all or nothing. A release that would
// overdraw its account rejects the whole batch.
func (v *Vault) Apply(movements []protocol.Movement) error {
	pending := make(map[string]protocol.Amount)
	balance := func(account string) protocol.Amount {
		if b, ok := pending[account]; ok {
			return b
		}
		return v.escrow[account]
	}

	for i, m := range movements {
		switch m.Direction {
		case protocol.DirectionIn:
			b := balance(m.Account)
			if m.Amount > math.MaxUint64-b {
				return fmt.Errorf("movement %d: deposit of %d overflows %s balance %d", i, m.Amount, m.Account, b)
			}
			pending[m.Account] = b + m.Amount
		case protocol.DirectionOut:
			b := balance(m.Account)
			if m.Amount > b {
				return fmt.Errorf("movement %d: release of %d exceeds %s balance %d", i, m.Amount, m.Account, b)
			}
			pending[m.Account] = b - m.Amount
		default:
			return fmt.Errorf("movement %d: unknown direction %q", i, m.Direction)
		}
	}

	for account, b := range pending {
		if b == 0 {
			delete(v.escrow, account)
			continue
		}
		v.escrow[account] = b
	}
	for _, m := range movements {
		if m.Direction == protocol.DirectionIn {
			v.deposited[m.Party] += m.Amount
		} else {
			v.paid[m.Party] += m.Amount
		}
	}
	return nil
}

// Escrow returns the balance of an account.
func (v *Vault) Escrow(account string) protocol.Amount {
	return v.escrow[account]
}

// Deposited returns the total a party has put into escrow.
func (v *Vault) Deposited(party protocol.Identity) protocol.Amount {
	return v.deposited[party]
}

// Paid returns the total released to a party.
func (v *Vault) Paid(party protocol.Identity) protocol.Amount {
	return v.paid[party]
}

// Balanced checks the conservation invariant.
func (v *Vault) Balanced() bool {
	var in, out, held protocol.Amount
	for _, a := range v.deposited {
		in += a
	}
	for _, a := range v.paid {
		out += a
	}
	for _, a := range v.escrow {
		held += a
	}
	return in == out+held
}

// Snapshot is a serializable view of the vault.
type Snapshot struct {
	Escrow    map[string]protocol.Amount            `json:"escrow"`
	Deposited map[protocol.Identity]protocol.Amount `json:"deposited"`
	Paid      map[protocol.Identity]protocol.Amount `json:"paid"`
}

// Snapshot copies the current balances.
func (v *Vault) Snapshot() Snapshot {
	s := Snapshot{
		Escrow:    make(map[string]protocol.Amount, len(v.escrow)),
		Deposited: make(map[protocol.Identity]protocol.Amount, len(v.deposited)),
		Paid:      make(map[protocol.Identity]protocol.Amount, len(v.paid)),
	}
	for k, a := range v.escrow {
		s.Escrow[k] = a
	}
	for k, a := range v.deposited {
		s.Deposited[k] = a
	}
	for k, a := range v.paid {
		s.Paid[k] = a
	}
	return s
}

// Accounts lists the non-empty escrow accounts in name order.
func (v *Vault) Accounts() []string {
	out := make([]string, 0, len(v.escrow))
	for k := range v.escrow {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
