package loader_test

import (
	"testing"

	"github.com/seantiz/modloader/internal/loader"
)

func TestMapGlobals(t *testing.T) {
	g := loader.NewMapGlobals()

	if v := g.Get("missing"); v != nil {
		t.Errorf("Get(missing) = %v", v)
	}

	g.Set("app.util.version", "1.2")
	if v := g.Get("app.util.version"); v != "1.2" {
		t.Errorf("Get(app.util.version) = %v", v)
	}
	if _, ok := g.Get("app.util").(map[string]any); !ok {
		t.Errorf("Get(app.util) = %T, want namespace", g.Get("app.util"))
	}
	if v := g.Get("app.util.version.major"); v != nil {
		t.Errorf("lookup through a leaf = %v, want nil", v)
	}

	// A leaf on the path is replaced by a namespace.
	g.Set("app.util.version.major", 1)
	if v := g.Get("app.util.version.major"); v != 1 {
		t.Errorf("Get(app.util.version.major) = %v", v)
	}
}
