package model

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewAnonymousName(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		name := NewAnonymousName("app/views/main.js")
		if seen[name] {
			t.Fatalf("NewAnonymousName() produced duplicate: %s", name)
		}
		seen[name] = true
		if !strings.HasPrefix(name, "app/views/~anonymous~") || !strings.HasSuffix(name, ".js") {
			t.Fatalf("NewAnonymousName() = %q, want app/views/~anonymous~*.js", name)
		}
		if !IsAnonymousName(name) {
			t.Fatalf("IsAnonymousName(%q) = false", name)
		}
	}
	if name := NewAnonymousName(""); strings.Contains(name, "/") {
		t.Errorf("NewAnonymousName(\"\") = %q, want no package", name)
	}
}

func TestStateValues(t *testing.T) {
	states := []struct {
		state State
		value int
		name  string
	}{
		{StatePreloaded, -1, "preloaded"},
		{StateUnresolved, 0, "unresolved"},
		{StateFetching, 1, "fetching"},
		{StateFetched, 2, "fetched"},
		{StateExecuting, 3, "executing"},
		{StateReady, 4, "ready"},
		{StateFailed, 5, "failed"},
	}
	for _, s := range states {
		if int(s.state) != s.value {
			t.Errorf("%s = %d, want %d", s.name, int(s.state), s.value)
		}
		if s.state.String() != s.name {
			t.Errorf("String() = %q, want %q", s.state.String(), s.name)
		}
		parsed, err := ParseState(strings.ToUpper(s.name))
		if err != nil || parsed != s.state {
			t.Errorf("ParseState(%q) = %v, %v", s.name, parsed, err)
		}
	}
	if _, err := ParseState("bogus"); err == nil {
		t.Error("ParseState(bogus) succeeded")
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUnresolved, StateFetching, true},
		{StateUnresolved, StatePreloaded, true},
		{StatePreloaded, StateFetched, true},
		{StateFetching, StateFetched, true},
		{StateFetched, StateExecuting, true},
		{StateExecuting, StateReady, true},
		{StateExecuting, StateFailed, true},
		{StateFetching, StateFailed, true},
		{StateReady, StateFetching, false},
		{StateReady, StateFailed, false},
		{StateFailed, StateReady, false},
		{StateFailed, StateFetching, false},
		{StateExecuting, StateFetching, false},
		{StatePreloaded, StateFetching, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestModuleReadyResolvesDeferredAndAliases(t *testing.T) {
	m := NewModule("a.js")
	alias := NewModule("b.js")
	m.AddAlias(alias)

	var got any
	m.Deferred().Then(func(v any, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		got = v
	})

	if err := m.Transition(StateFetching); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := m.Ready("export", true); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if got != "export" {
		t.Errorf("deferred value = %v, want export", got)
	}
	if alias.State() != StateReady || !alias.Settled() {
		t.Errorf("alias state = %s settled=%v, want ready", alias.State(), alias.Settled())
	}
	if v, ok := alias.Content(); !ok || v != "export" {
		t.Errorf("alias content = %v (%v), want export", v, ok)
	}
}

func TestModuleDoubleSettle(t *testing.T) {
	m := NewModule("a.js")
	if err := m.Ready(1, true); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := m.Ready(2, true); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("second Ready error = %v, want ErrAlreadySettled", err)
	}
	if err := m.Fail(errors.New("boom")); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("Fail after Ready error = %v, want ErrAlreadySettled", err)
	}
	if m.Err() != nil {
		t.Errorf("ready module carries error %v", m.Err())
	}
	if v, _ := m.Content(); v != 1 {
		t.Errorf("content = %v, want 1", v)
	}
}

func TestModuleFailKeepsFirstError(t *testing.T) {
	m := NewModule("a.js")
	_ = m.Transition(StateFetching)
	first := errors.New("first")
	if err := m.Fail(first); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	_ = m.Fail(errors.New("second"))
	if !errors.Is(m.Err(), first) {
		t.Errorf("Err() = %v, want first", m.Err())
	}
	_, err := m.Deferred().Result()
	if !errors.Is(err, first) {
		t.Errorf("late deferred error = %v, want first", err)
	}
}

func TestModuleReexecution(t *testing.T) {
	m := NewModule("a.js")
	f := m.Deferred()
	_ = m.Ready("v1", true)
	if err := m.Transition(StateExecuting); err != nil {
		t.Fatalf("Transition to executing: %v", err)
	}
	if err := m.Ready("v2", true); err != nil {
		t.Fatalf("re-Ready: %v", err)
	}
	if v, _ := m.Content(); v != "v2" {
		t.Errorf("content = %v, want v2", v)
	}
	if v, _ := f.Result(); v != "v1" {
		t.Errorf("resolved waiter value = %v, want v1", v)
	}
}

func TestModuleReset(t *testing.T) {
	m := NewModule("a.js")
	if err := m.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset of unresolved module error = %v", err)
	}
	_ = m.Fail(errors.New("x"))
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.State() != StateUnresolved || m.Err() != nil || m.Settled() {
		t.Errorf("after reset: state=%s err=%v settled=%v", m.State(), m.Err(), m.Settled())
	}

	f := m.Deferred()
	if err := m.Transition(StateFetching); err != nil {
		t.Fatalf("Transition after reset: %v", err)
	}
	if err := m.Ready("v", true); err != nil {
		t.Fatalf("Ready after reset: %v", err)
	}
	if v, err := f.Result(); v != "v" || err != nil {
		t.Errorf("deferred after reset = %v, %v", v, err)
	}
}

func TestTransitionRejectsTerminal(t *testing.T) {
	m := NewModule("a.js")
	if err := m.Transition(StateReady); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition(ready) error = %v, want ErrInvalidTransition", err)
	}
	if err := m.Transition(StateFetched); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition(unresolved->fetched) error = %v, want ErrInvalidTransition", err)
	}
}

func TestDefinitionDependencies(t *testing.T) {
	f := func([]any) (any, error) { return nil, nil }
	tests := []struct {
		def  Definition
		want []string
	}{
		{Definition{Deps: []string{"a"}}, []string{"a"}},
		{Definition{Factory: f, Arity: 0}, []string{}},
		{Definition{Factory: f, Arity: 2}, []string{"require", "exports"}},
		{Definition{Factory: f, Arity: 5}, []string{"require", "exports", "module"}},
		{Definition{Value: 1, Arity: 2}, []string{}},
	}
	for _, tt := range tests {
		got := tt.def.Dependencies()
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Dependencies() = %v, want %v", got, tt.want)
		}
	}
}

func TestFutureAll(t *testing.T) {
	a, b := &Future{}, &Future{}
	agg := All([]*Future{a, b})
	b.Resolve("b")
	if agg.Done() {
		t.Fatal("aggregate settled early")
	}
	a.Resolve("a")
	v, err := agg.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals := v.([]any)
	if vals[0] != "a" || vals[1] != "b" {
		t.Errorf("values = %v, want [a b]", vals)
	}

	boom := errors.New("boom")
	c := &Future{}
	agg = All([]*Future{c, Rejected(boom)})
	if _, err := agg.Result(); !errors.Is(err, boom) {
		t.Errorf("aggregate error = %v, want boom", err)
	}
	if !All(nil).Done() {
		t.Error("All(nil) not settled")
	}
}
