package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a module state transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAlreadySettled is returned when a settled module is resolved or failed again.
	ErrAlreadySettled = errors.New("module already settled")
)

// Module is the registry record for one module identity.
//
// A Module is owned by the loader thread; none of its methods are safe for
// concurrent use.
type Module struct {
	// Name is the normalized, extension-qualified resource name (e.g. "app/x.js").
	Name string
	// URL is the location the body was (or is being) fetched from.
	URL string
	// Data holds the body until it has been executed.
	Data Body
	// Group is the bundle the module body was delivered with, if any.
	Group string
	// Async records the mode of the outstanding fetch.
	Async bool
	// Pending lists the dependencies declared while the module was being
	// defined. Entries are never removed; the list only serves reachability.
	Pending []string
	// Exports is the object handed to factories requesting "exports".
	Exports any
	// Meta is the object handed to factories requesting "module".
	Meta *Meta

	state       State
	content     any
	determined  bool
	err         error
	aliases     []*Module
	settled     bool
	reexecuting bool
	deferred    *Future
}

// Meta describes a module to its own factory.
type Meta struct {
	ID      string
	URL     string
	Exports any
}

// NewModule creates a module in the unresolved state.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// State returns the current lifecycle state.
func (m *Module) State() State { return m.state }

// Settled reports whether the module reached READY or FAILED at least once.
func (m *Module) Settled() bool { return m.settled }

// Err returns the stored failure, if the module is in the failed state.
func (m *Module) Err() error {
	if m.state != StateFailed {
		return nil
	}
	return m.err
}

// Aliases returns the names of the modules that share this module's outcome.
func (m *Module) Aliases() []string {
	names := make([]string, len(m.aliases))
	for i, a := range m.aliases {
		names[i] = a.Name
	}
	return names
}

// Transition moves the module to state to. It does not settle the module;
// use Ready or Fail for terminal states.
func (m *Module) Transition(to State) error {
	if to.Terminal() {
		return fmt.Errorf("%w: %s -> %s must settle", ErrInvalidTransition, m.state, to)
	}
	if !ValidTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, m.state, to, m.Name)
	}
	if m.state == StateReady && to == StateExecuting {
		m.reexecuting = true
	}
	m.state = to
	return nil
}

// Reset returns a failed module to the unresolved state so it can be
// requested again. It is the only operation that clears the settled flag;
// waiters of the failed attempt keep their rejection and later waiters get a
// fresh future.
func (m *Module) Reset() error {
	if m.state != StateFailed {
		return fmt.Errorf("%w: reset of %s module %s", ErrInvalidTransition, m.state, m.Name)
	}
	m.state = StateUnresolved
	m.err = nil
	m.URL = ""
	m.Data = nil
	m.Async = false
	m.settled = false
	m.deferred = nil
	return nil
}

// AddPending records name as a declared dependency.
func (m *Module) AddPending(name string) {
	m.Pending = append(m.Pending, name)
}

// AddAlias makes alias share this module's outcome. If the module has already
// settled, the outcome is forwarded immediately.
func (m *Module) AddAlias(alias *Module) {
	if alias == m {
		return
	}
	m.aliases = append(m.aliases, alias)
	if !m.settled || alias.settled {
		return
	}
	if m.state == StateFailed {
		_ = alias.Fail(m.err)
	} else {
		_ = alias.Ready(m.content, m.determined)
	}
}

// Content returns the export value and whether it has been determined.
func (m *Module) Content() (any, bool) {
	return m.content, m.determined
}

// SetContent stores a determined export value.
func (m *Module) SetContent(v any) {
	m.content = v
	m.determined = true
}

// ClearContent marks the export value as not yet determined.
func (m *Module) ClearContent() {
	m.content = nil
	m.determined = false
}

// Ready settles the module in the READY state with the given content. When
// determined is false the export is computed lazily by the loader.
func (m *Module) Ready(v any, determined bool) error {
	if m.settled && !(m.reexecuting && m.state == StateExecuting) {
		return fmt.Errorf("%w: %s (%s)", ErrAlreadySettled, m.Name, m.state)
	}
	if !ValidTransition(m.state, StateReady) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, m.state, StateReady, m.Name)
	}
	m.state = StateReady
	m.Data = nil
	m.err = nil
	m.content = v
	m.determined = determined
	if m.reexecuting {
		m.reexecuting = false
		return nil
	}
	m.settled = true
	if m.deferred != nil {
		m.deferred.Resolve(v)
	}
	for _, a := range m.aliases {
		if !a.settled {
			_ = a.Ready(v, determined)
		}
	}
	return nil
}

// Fail settles the module in the FAILED state. Only the first error is kept.
func (m *Module) Fail(err error) error {
	if m.settled && !(m.reexecuting && m.state == StateExecuting) {
		return fmt.Errorf("%w: %s (%s)", ErrAlreadySettled, m.Name, m.state)
	}
	if !ValidTransition(m.state, StateFailed) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, m.state, StateFailed, m.Name)
	}
	m.state = StateFailed
	m.Data = nil
	m.err = err
	m.ClearContent()
	if m.reexecuting {
		m.reexecuting = false
		return nil
	}
	m.settled = true
	if m.deferred != nil {
		m.deferred.Reject(err)
	}
	for _, a := range m.aliases {
		if !a.settled {
			_ = a.Fail(err)
		}
	}
	return nil
}

// Deferred returns the module's future, creating it on first use.
func (m *Module) Deferred() *Future {
	if m.deferred == nil {
		m.deferred = &Future{}
		switch {
		case m.settled && m.state == StateFailed:
			m.deferred.Reject(m.err)
		case m.settled:
			m.deferred.Resolve(m.content)
		}
	}
	return m.deferred
}

// HasDeferred reports whether anyone has waited on the module asynchronously.
func (m *Module) HasDeferred() bool { return m.deferred != nil }
