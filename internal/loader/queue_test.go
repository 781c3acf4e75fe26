package loader_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

func TestAnonymousDefineAdoptsRequestedName(t *testing.T) {
	h := newHarness(t, loader.Options{})
	h.serveDef("/res/m.js", model.Definition{
		Deps: []string{"require", "exports"},
		Factory: func(deps []any) (any, error) {
			if _, ok := deps[0].(*loader.LocalRequire); !ok {
				t.Errorf("require = %T", deps[0])
			}
			deps[1].(map[string]any)["ok"] = true
			return nil, nil
		},
	})

	values, err := h.requireAsync("m")
	if err != nil {
		t.Fatalf("require: %v", err)
	}
	if values[0].(map[string]any)["ok"] != true {
		t.Errorf("export = %v", values[0])
	}
	for _, info := range h.l.Dump(model.StatePreloaded) {
		if model.IsAnonymousName(info.Name) {
			t.Errorf("unexpected synthesized module %s", info.Name)
		}
	}
}

func twoAnonymousDefines(h *harness) {
	h.serve("/res/m.js", func() error {
		h.l.Define(&model.Definition{Value: "first"})
		h.l.Define(&model.Definition{Value: "second"})
		return nil
	})
}

func TestSecondAnonymousDefineStrict(t *testing.T) {
	h := newHarness(t, loader.Options{StrictDefine: true})
	twoAnonymousDefines(h)

	_, err := h.requireAsync("m")
	if !errors.Is(err, loader.ErrAnonymousDefinition) {
		t.Fatalf("err = %v, want ErrAnonymousDefinition", err)
	}
	var me *loader.ModuleError
	if !errors.As(err, &me) || me.Module != "m.js" {
		t.Errorf("err = %v, want failure of m.js", err)
	}
	if got := h.l.GetModuleState("m"); got != model.StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
}

func TestSecondAnonymousDefineLenient(t *testing.T) {
	h := newHarness(t, loader.Options{})
	twoAnonymousDefines(h)

	values, err := h.requireAsync("m")
	if err != nil {
		t.Fatalf("require: %v", err)
	}
	if values[0] != "first" {
		t.Errorf("m = %v, want first", values[0])
	}

	var synthesized []loader.ModuleInfo
	for _, info := range h.l.Dump(model.StatePreloaded) {
		if model.IsAnonymousName(info.Name) {
			synthesized = append(synthesized, info)
		}
	}
	if len(synthesized) != 1 || synthesized[0].State != model.StateReady {
		t.Errorf("synthesized modules = %+v, want one ready module", synthesized)
	}
	if !strings.Contains(h.logs.String(), "synthesized name") {
		t.Error("no warning logged for the synthesized name")
	}
}

func TestNamelessAfterNamedDefinition(t *testing.T) {
	body := func(h *harness) func() error {
		return func() error {
			h.l.Define(&model.Definition{Name: "m", Value: "named"})
			h.l.Define(&model.Definition{Value: "nameless"})
			return nil
		}
	}

	h := newHarness(t, loader.Options{StrictDefine: true})
	h.serve("/res/m.js", body(h))
	_, err := h.l.RequireSync("m")
	if !errors.Is(err, loader.ErrDuplicateDefinition) {
		t.Errorf("strict: err = %v, want ErrDuplicateDefinition", err)
	}

	h = newHarness(t, loader.Options{})
	h.serve("/res/m.js", body(h))
	v, err := h.l.RequireSync("m")
	if err != nil || v != "named" {
		t.Errorf("lenient: RequireSync = %v, %v; want named", v, err)
	}
	logs := h.logs.String()
	if !strings.Contains(logs, "duplicate module definition") {
		t.Error("lenient: duplicate definition not logged")
	}
	// The dropped entry is the second of two.
	if !strings.Contains(logs, `"position":1,"definitions":2`) {
		t.Errorf("lenient: dropped definition position not logged: %s", logs)
	}
}

func TestDefinitionUnderOtherNameAliasesRequest(t *testing.T) {
	h := newHarness(t, loader.Options{})
	h.serve("/res/old/name.js", func() error {
		h.l.Define(&model.Definition{Name: "new/name", Value: "N"})
		return nil
	})

	v, err := h.l.RequireSync("old/name")
	if err != nil || v != "N" {
		t.Fatalf("RequireSync = %v, %v", v, err)
	}
	if got := h.l.Probe("new/name"); got != "N" {
		t.Errorf("Probe(new/name) = %v", got)
	}
	info, _ := h.l.Module("new/name")
	if len(info.Aliases) != 1 || info.Aliases[0] != "old/name.js" {
		t.Errorf("aliases = %v", info.Aliases)
	}
}

func TestBodyWithoutDefineIsReadyUndetermined(t *testing.T) {
	h := newHarness(t, loader.Options{})
	h.serve("/res/plain.js", func() error { return nil })

	values, err := h.requireAsync("plain")
	if err != nil {
		t.Fatalf("require: %v", err)
	}
	if values[0] != nil {
		t.Errorf("value = %v, want nil", values[0])
	}
	if got := h.l.GetModuleState("plain"); got != model.StateReady {
		t.Errorf("state = %s", got)
	}
}

func TestBundleBodyDefinesSeveralModules(t *testing.T) {
	h := newHarness(t, loader.Options{})
	h.serve("/res/lib/bundle.js", func() error {
		h.l.Define(&model.Definition{Name: "lib/a", Value: "A"})
		h.l.Define(&model.Definition{Name: "lib/b", Deps: []string{"./a"}, Factory: func(d []any) (any, error) {
			return d[0].(string) + "B", nil
		}})
		return nil
	})

	if _, err := h.requireAsync("lib/bundle"); err != nil {
		t.Fatalf("require: %v", err)
	}
	if got := h.l.Probe("lib/b"); got != "AB" {
		t.Errorf("lib/b = %v, want AB", got)
	}
	if len(h.fetched) != 1 {
		t.Errorf("fetched %v", h.fetched)
	}
}

func TestRootQueueAnonymousDefine(t *testing.T) {
	h := newHarness(t, loader.Options{})
	h.l.Define(&model.Definition{Value: "stray"})
	h.drain()

	found := false
	for _, info := range h.l.Dump(model.StateReady) {
		if model.IsAnonymousName(info.Name) {
			found = true
		}
	}
	if !found {
		t.Error("lenient root-queue definition did not get a synthesized module")
	}

	h = newHarness(t, loader.Options{StrictDefine: true})
	h.l.Define(&model.Definition{Value: "stray"})
	h.drain()
	if n := len(h.l.Dump(model.StatePreloaded)); n != 0 {
		t.Errorf("strict root queue registered %d modules", n)
	}
	if !strings.Contains(h.logs.String(), "ignoring anonymous definition") {
		t.Error("strict root queue did not log the dropped definition")
	}
}
