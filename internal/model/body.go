package model

// Body is a module payload that has been acquired but not yet executed.
// It is one of Source, Script or *Definition.
type Body interface {
	body()
}

// Source is module text handed to the evaluator.
type Source string

// Script is a Go closure standing in for module text. It usually calls the
// loader's Define while it runs.
type Script func() error

// Factory produces a module export from its resolved dependencies.
type Factory func(deps []any) (any, error)

// Definition is a module declaration: the argument list of a define call.
type Definition struct {
	// Name is empty for anonymous definitions.
	Name string
	// Deps is nil when the caller omitted the dependency list; see Dependencies.
	Deps []string
	// Factory computes the export. When nil, Value is the export.
	Factory Factory
	Value   any
	// Arity is the declared parameter count of the factory.
	Arity int
	// ExportGlobal also publishes the export under the module's dotted name.
	ExportGlobal bool
}

// PseudoDeps are the dependency names inferred for factories declared without
// a dependency list, in parameter order.
var PseudoDeps = []string{"require", "exports", "module"}

// Dependencies returns the declared dependencies, inferring them from the
// factory arity when none were given.
func (d *Definition) Dependencies() []string {
	if d.Deps != nil {
		return d.Deps
	}
	if d.Factory == nil || d.Arity <= 0 {
		return []string{}
	}
	n := min(d.Arity, len(PseudoDeps))
	return append([]string(nil), PseudoDeps[:n]...)
}

func (Source) body()      {}
func (Script) body()      {}
func (*Definition) body() {}

// Preload maps resource names to bodies delivered ahead of any request.
type Preload map[string]Body
