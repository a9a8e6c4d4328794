// Package fsm validates lifecycle transitions against a fixed table.
//
// Tables are built once, at package init of the owning ledger, and checked
// for consistency there: every state named in a transition must be
// declared, no state may transition to itself, and terminal states have no
// outgoing edges.
package fsm

import (
	"fmt"

	"github.com/tutu-network/cityledger/internal/domain"
)

// State is any comparable, printable lifecycle state.
type State interface {
	comparable
	fmt.Stringer
}

// Machine is an immutable transition table.
type Machine[S State] struct {
	name   string
	states map[S]bool
	edges  map[S]map[S]bool
}

// Edge is a single allowed transition.
type Edge[S State] struct {
	From, To S
}

// New validates and builds a machine.
func New[S State](name string, states []S, edges []Edge[S]) (*Machine[S], error) {
	m := &Machine[S]{
		name:   name,
		states: make(map[S]bool, len(states)),
		edges:  make(map[S]map[S]bool),
	}
	for _, s := range states {
		if m.states[s] {
			return nil, fmt.Errorf("fsm %s: state %s declared twice", name, s)
		}
		m.states[s] = true
	}
	for _, e := range edges {
		if !m.states[e.From] {
			return nil, fmt.Errorf("fsm %s: undeclared state %s", name, e.From)
		}
		if !m.states[e.To] {
			return nil, fmt.Errorf("fsm %s: undeclared state %s", name, e.To)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("fsm %s: self transition on %s", name, e.From)
		}
		if m.edges[e.From] == nil {
			m.edges[e.From] = make(map[S]bool)
		}
		if m.edges[e.From][e.To] {
			return nil, fmt.Errorf("fsm %s: duplicate edge %s -> %s", name, e.From, e.To)
		}
		m.edges[e.From][e.To] = true
	}
	return m, nil
}

// MustNew is New for package-level tables; it panics on an invalid table.
func MustNew[S State](name string, states []S, edges []Edge[S]) *Machine[S] {
	m, err := New(name, states, edges)
	if err != nil {
		panic(err)
	}
	return m
}

// Check returns nil if from → to is allowed, else an error wrapping
// domain.ErrInvalidState.
func (m *Machine[S]) Check(from, to S) error {
	if m.edges[from][to] {
		return nil
	}
	return fmt.Errorf("%s: %s -> %s: %w", m.name, from, to, domain.ErrInvalidState)
}

// Require returns nil if current equals want, else an error wrapping
// domain.ErrInvalidState. Used for operations that are only valid in one
// state without changing it.
func (m *Machine[S]) Require(current, want S) error {
	if current == want {
		return nil
	}
	return fmt.Errorf("%s is %s, expected %s: %w", m.name, current, want, domain.ErrInvalidState)
}

// Terminal reports whether s has no outgoing transitions.
func (m *Machine[S]) Terminal(s S) bool {
	return len(m.edges[s]) == 0
}
