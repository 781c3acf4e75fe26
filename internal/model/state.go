package model

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a module. The numeric values order states by
// progress and are used as thresholds when dumping the registry.
type State int

// Module state constants.
const (
	StatePreloaded  State = -1
	StateUnresolved State = 0
	StateFetching   State = 1
	StateFetched    State = 2
	StateExecuting  State = 3
	StateReady      State = 4
	StateFailed     State = 5
)

var stateNames = map[State]string{
	StatePreloaded:  "preloaded",
	StateUnresolved: "unresolved",
	StateFetching:   "fetching",
	StateFetched:    "fetched",
	StateExecuting:  "executing",
	StateReady:      "ready",
	StateFailed:     "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name so JSON reports stay readable.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState accepts a state name (case-insensitive) and returns the state.
func ParseState(name string) (State, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateUnresolved, fmt.Errorf("unknown module state %q", name)
}

// Terminal reports whether s is READY or FAILED.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// validTransitions maps each state to the set of states it may transition to.
// READY→EXECUTING is only taken when re-execution has been opted into, and
// FAILED→UNRESOLVED only by an explicit reset; callers enforce both.
var validTransitions = map[State]map[State]bool{
	StateUnresolved: {
		StatePreloaded: true,
		StateFetching:  true,
		StateExecuting: true,
		StateReady:     true,
		StateFailed:    true,
	},
	StatePreloaded: {
		StateFetched:   true,
		StateExecuting: true,
		StateReady:     true,
		StateFailed:    true,
	},
	StateFetching: {
		StateFetching:  true,
		StateFetched:   true,
		StateExecuting: true,
		StateReady:     true,
		StateFailed:    true,
	},
	StateFetched: {
		StateExecuting: true,
		StateReady:     true,
		StateFailed:    true,
	},
	StateExecuting: {
		StateReady:  true,
		StateFailed: true,
	},
	StateReady: {
		StateExecuting: true,
	},
	StateFailed: {
		StateUnresolved: true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
