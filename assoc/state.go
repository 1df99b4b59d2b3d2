// Package assoc holds the association-lifecycle state machine, TLS
// transport, ARTIM timer, and max-PDU negotiation shared by both the
// client (SCU) and server (SCP) sides of a DICOM Upper Layer association.
//
// Generalizes the teacher's client.Association (a single TCP-only struct
// with its connect/release logic inlined) and pdu.Layer's association-phase
// handling into one state machine both sides drive, grounded on the
// teacher's association lifecycle (Connect/sendAssociateRQ/receiveAssociateAC,
// handleAssociationPhase/handleReleaseRequest) but made explicit and
// independently testable.
package assoc

import (
	"fmt"
	"sync"
)

// State is one stage of the association lifecycle, PS3.8 Section 7's
// connection establishment/release state machine collapsed to the states
// this module's callers actually need to distinguish.
type State int

const (
	Idle State = iota
	AwaitingAssociate
	Established
	AwaitingRelease
	Released
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingAssociate:
		return "AwaitingAssociate"
	case Established:
		return "Established"
	case AwaitingRelease:
		return "AwaitingRelease"
	case Released:
		return "Released"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// validTransitions enumerates the only state changes FSM.Transition allows.
// Released and Aborted are terminal: no transition leaves them.
var validTransitions = map[State]map[State]bool{
	Idle:              {AwaitingAssociate: true, Aborted: true},
	AwaitingAssociate: {Established: true, Aborted: true, Idle: true},
	Established:       {AwaitingRelease: true, Aborted: true},
	AwaitingRelease:    {Released: true, Aborted: true},
	Released:          {},
	Aborted:           {},
}

// ErrInvalidTransition is returned by Transition for a state change not in
// validTransitions.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("assoc: invalid state transition %s -> %s", e.From, e.To)
}

// FSM is a mutex-guarded association state machine. The zero value starts
// in Idle.
type FSM struct {
	mu    sync.Mutex
	state State
}

// NewFSM returns an FSM starting in Idle.
func NewFSM() *FSM {
	return &FSM{state: Idle}
}

// State returns the current state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transition moves the FSM to to, returning ErrInvalidTransition if that
// change isn't allowed from the current state.
func (f *FSM) Transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !validTransitions[f.state][to] {
		return &ErrInvalidTransition{From: f.state, To: to}
	}
	f.state = to
	return nil
}

// MustBeIn returns an error unless the current state is one of want.
func (f *FSM) MustBeIn(want ...State) error {
	f.mu.Lock()
	current := f.state
	f.mu.Unlock()
	for _, w := range want {
		if current == w {
			return nil
		}
	}
	return fmt.Errorf("assoc: expected state in %v, got %s", want, current)
}
