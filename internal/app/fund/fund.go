// Package fund implements the emergency fund ledger.
//
// Citizens contribute; only the emergency payout path disburses, and it
// does so inside its own transaction. Balance == TotalContributions -
// TotalPayouts holds after every committed operation.
package fund

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/kv"
	"github.com/tutu-network/cityledger/internal/infra/metrics"
)

// Store components.
const (
	StateComponent         = "fund"
	ContributionsComponent = "contributions"

	stateKey = "state"
)

// State is the fund's aggregate bookkeeping.
type State struct {
	Balance            uint64 `json:"balance"`
	TotalContributions uint64 `json:"total_contributions"`
	TotalPayouts       uint64 `json:"total_payouts"`
}

// Conserved reports whether the balance equals contributions minus payouts.
func (s State) Conserved() bool {
	return s.TotalPayouts <= s.TotalContributions &&
		s.Balance == s.TotalContributions-s.TotalPayouts
}

// Ledger is the emergency fund.
type Ledger struct {
	deps app.Deps
}

// New creates a fund ledger.
func New(deps app.Deps) *Ledger {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.With("component", "fund")
	return &Ledger{deps: deps}
}

// Contribute adds amount from the caller to the fund.
func (l *Ledger) Contribute(ctx context.Context, amount uint64) error {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("contribute: zero amount: %w", domain.ErrInvalidAmount)
	}

	var after State
	err = l.deps.Mutate(ctx, "contribute", func(tx domain.Txn, emit *app.Emitter) error {
		st, err := l.State(tx)
		if err != nil {
			return err
		}
		balance, c1 := bits.Add64(st.Balance, amount, 0)
		total, c2 := bits.Add64(st.TotalContributions, amount, 0)
		mine, err := kv.GetOr[uint64](tx, ContributionsComponent, string(caller), 0)
		if err != nil {
			return err
		}
		mine, c3 := bits.Add64(mine, amount, 0)
		if c1|c2|c3 != 0 {
			return fmt.Errorf("contribute %d: balance overflow: %w", amount, domain.ErrInvalidAmount)
		}

		st.Balance = balance
		st.TotalContributions = total
		if err := kv.Put(tx, StateComponent, stateKey, st); err != nil {
			return err
		}
		if err := kv.Put(tx, ContributionsComponent, string(caller), mine); err != nil {
			return err
		}
		emit.Emit(domain.FundContribution{Contributor: caller, Amount: amount, NewBalance: balance})
		after = st
		return nil
	})
	if err != nil {
		return fmt.Errorf("contribute: %w", err)
	}

	metrics.FundContributed.Add(float64(amount))
	metrics.FundBalance.Set(float64(after.Balance))
	return nil
}

// Disburse debits amount for recipient inside tx, so the debit commits or
// rolls back with the caller's other writes. It emits nothing; the caller
// records why the money moved.
func (l *Ledger) Disburse(tx domain.Txn, amount uint64, recipient domain.Identity) (State, error) {
	st, err := l.State(tx)
	if err != nil {
		return st, err
	}
	if amount > st.Balance {
		return st, fmt.Errorf("disburse %d to %s, balance %d: %w",
			amount, recipient, st.Balance, domain.ErrInsufficientFunds)
	}
	st.Balance -= amount
	st.TotalPayouts += amount // bounded by TotalContributions
	if err := kv.Put(tx, StateComponent, stateKey, st); err != nil {
		return st, err
	}
	return st, nil
}

// State returns the fund bookkeeping as seen by tx.
func (l *Ledger) State(tx domain.Txn) (State, error) {
	return kv.GetOr(tx, StateComponent, stateKey, State{})
}

// Snapshot returns the committed fund bookkeeping.
func (l *Ledger) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := l.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		st, err = l.State(tx)
		return err
	})
	return st, err
}

// Contribution returns the cumulative amount id has contributed.
func (l *Ledger) Contribution(ctx context.Context, id domain.Identity) (uint64, error) {
	var total uint64
	err := l.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		total, err = kv.GetOr[uint64](tx, ContributionsComponent, string(id), 0)
		return err
	})
	return total, err
}

// Audit verifies the conservation invariant, including that per-identity
// contributions sum to the recorded total.
func (l *Ledger) Audit(ctx context.Context) error {
	return l.deps.Store.View(ctx, func(tx domain.Txn) error {
		st, err := l.State(tx)
		if err != nil {
			return err
		}
		if !st.Conserved() {
			return fmt.Errorf("fund not conserved: balance %d, contributions %d, payouts %d",
				st.Balance, st.TotalContributions, st.TotalPayouts)
		}
		per, err := kv.List[uint64](tx, ContributionsComponent, "")
		if err != nil {
			return err
		}
		var sum uint64
		for _, v := range per {
			sum += v
		}
		if sum != st.TotalContributions {
			return fmt.Errorf("contributions sum %d, recorded total %d", sum, st.TotalContributions)
		}
		return nil
	})
}
