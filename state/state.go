package state

import (
	"errors"
	"sync"

	"github.com/wfunc/mafiaserver/models"
)

// ErrTransitionNotAllowed is returned when a phase transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Machine validates room phase transitions against a transition table.
// The room's phase only ever moves through a Machine; triggers fired in the
// wrong phase are rejected without mutating anything.
type Machine struct {
	transitions map[models.Phase]map[models.Phase]struct{}
	mutex       sync.RWMutex
}

// NewMachine builds the machine for the mafia phase graph:
//
//	lobby -> night -> day <-> voting -> finished
//
// finished is terminal. Both day and voting may advance to night (next
// round) or finished (win detected after an elimination).
func NewMachine() *Machine {
	m := &Machine{
		transitions: make(map[models.Phase]map[models.Phase]struct{}),
	}
	m.addTransition(models.PhaseLobby, models.PhaseNight)
	m.addTransition(models.PhaseNight, models.PhaseDay)
	m.addTransition(models.PhaseNight, models.PhaseFinished)
	m.addTransition(models.PhaseDay, models.PhaseVoting)
	m.addTransition(models.PhaseVoting, models.PhaseDay)
	m.addTransition(models.PhaseDay, models.PhaseNight)
	m.addTransition(models.PhaseVoting, models.PhaseNight)
	m.addTransition(models.PhaseDay, models.PhaseFinished)
	m.addTransition(models.PhaseVoting, models.PhaseFinished)
	return m
}

func (m *Machine) addTransition(from, to models.Phase) {
	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[models.Phase]struct{})
	}
	m.transitions[from][to] = struct{}{}
}

// Validate returns ErrTransitionNotAllowed unless from -> to is legal.
func (m *Machine) Validate(from, to models.Phase) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if targets, exists := m.transitions[from]; exists {
		if _, ok := targets[to]; ok {
			return nil
		}
	}
	return ErrTransitionNotAllowed
}

// AcceptsNightActions reports whether night actions may be submitted.
func AcceptsNightActions(p models.Phase) bool {
	return p == models.PhaseNight
}

// AcceptsVotes reports whether day votes may be cast. Day and voting are the
// same legal window for voting; they differ only for presentation.
func AcceptsVotes(p models.Phase) bool {
	return p == models.PhaseDay || p == models.PhaseVoting
}

// IsTerminal reports whether the phase is final.
func IsTerminal(p models.Phase) bool {
	return p == models.PhaseFinished
}
