package jsrt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dop251/goja"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

// requirer is the require function seen by scripts, either the global one
// or one bound to a module.
type requirer interface {
	Require(ids []string, onOK func([]any), onErr func(error)) *model.Future
	Probe(id string) any
	Sync(id string) (any, error)
	ToURL(id string) (string, error)
}

type topRequire struct {
	*loader.Loader
}

func (t topRequire) Sync(id string) (any, error) { return t.RequireSync(id) }

func (r *Runtime) install() error {
	vm := r.vm
	for name, v := range map[string]any{
		"define":      r.define,
		"require":     r.requireFunc(topRequire{r.loader}),
		"requireSync": r.requireSync,
		"preload":     r.preload,
		"console":     r.console(),
	} {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// define(name?, deps?, factory|value, export?)
func (r *Runtime) define(call goja.FunctionCall) goja.Value {
	args := call.Arguments
	def := &model.Definition{}
	if len(args) > 1 {
		if name, ok := args[0].Export().(string); ok {
			def.Name = name
			args = args[1:]
		}
	}
	if len(args) > 1 {
		if deps, ok := r.stringList(args[0]); ok {
			def.Deps = deps
			args = args[1:]
		}
	}
	if len(args) == 0 {
		panic(r.vm.NewTypeError("define: missing factory"))
	}
	if len(args) > 1 {
		def.ExportGlobal = args[1].ToBoolean()
	}

	body := args[0]
	if fn, ok := goja.AssertFunction(body); ok {
		def.Arity = int(body.ToObject(r.vm).Get("length").ToInteger())
		def.Factory = r.factory(fn)
	} else {
		def.Value = fromJS(body)
	}
	r.loader.Define(def)
	return goja.Undefined()
}

func (r *Runtime) factory(fn goja.Callable) model.Factory {
	return func(deps []any) (any, error) {
		args := make([]goja.Value, len(deps))
		for i, d := range deps {
			args[i] = r.toJS(d)
		}
		v, err := fn(goja.Undefined(), args...)
		if err != nil {
			return nil, err
		}
		return fromJS(v), nil
	}
}

// requireFunc builds require(idOrList, callback?, errback?). A string probes
// without loading; a list loads asynchronously.
func (r *Runtime) requireFunc(req requirer) goja.Value {
	vm := r.vm
	fn := func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		ids, ok := r.stringList(arg)
		if !ok {
			return r.toJS(req.Probe(arg.String()))
		}

		cb, _ := goja.AssertFunction(call.Argument(1))
		var onErr func(error)
		if eb, ok := goja.AssertFunction(call.Argument(2)); ok {
			onErr = func(err error) {
				r.invoke("errback", eb, r.vm.NewGoError(err))
			}
		}
		req.Require(ids, func(values []any) {
			if cb == nil {
				return
			}
			args := make([]goja.Value, len(values))
			for i, v := range values {
				args[i] = r.toJS(v)
			}
			r.invoke("callback", cb, args...)
		}, onErr)
		return goja.Undefined()
	}

	obj := vm.ToValue(fn).ToObject(vm)
	_ = obj.Set("toUrl", func(call goja.FunctionCall) goja.Value {
		u, err := req.ToURL(call.Argument(0).String())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(u)
	})
	_ = obj.Set("sync", func(call goja.FunctionCall) goja.Value {
		v, err := req.Sync(call.Argument(0).String())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return r.toJS(v)
	})
	return obj
}

func (r *Runtime) requireSync(call goja.FunctionCall) goja.Value {
	v, err := r.loader.RequireSync(call.Argument(0).String())
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	return r.toJS(v)
}

// preload(map, group?) registers module bodies ahead of any request.
// Functions become scripts, strings become source text and anything else
// is taken as the export value.
func (r *Runtime) preload(call goja.FunctionCall) goja.Value {
	obj := call.Argument(0).ToObject(r.vm)
	p := make(model.Preload)
	for _, name := range obj.Keys() {
		v := obj.Get(name)
		if fn, ok := goja.AssertFunction(v); ok {
			p[name] = model.Script(func() error {
				_, err := fn(goja.Undefined())
				return err
			})
			continue
		}
		if src, ok := v.Export().(string); ok {
			p[name] = model.Source(src)
			continue
		}
		p[name] = &model.Definition{Value: fromJS(v)}
	}

	group := ""
	if g := call.Argument(1); !goja.IsUndefined(g) && !goja.IsNull(g) {
		group = g.String()
	}
	return r.vm.ToValue(r.loader.Preload(p, group))
}

func (r *Runtime) console() *goja.Object {
	obj := r.vm.NewObject()
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			r.logger.Log(context.Background(), level, strings.Join(parts, " "), "source", "console")
			return goja.Undefined()
		})
	}
	return obj
}

// invoke calls a script callback and logs what it throws.
func (r *Runtime) invoke(kind string, fn goja.Callable, args ...goja.Value) {
	if _, err := fn(goja.Undefined(), args...); err != nil {
		r.logger.Error("require "+kind+" threw", "error", err)
	}
}

// stringList reports whether v is an array and returns its elements as strings.
func (r *Runtime) stringList(v goja.Value) ([]string, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		return nil, false
	}
	var out []string
	if err := r.vm.ExportTo(v, &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = []string{}
	}
	return out, true
}

// toJS converts a loader value for use by scripts.
func (r *Runtime) toJS(v any) goja.Value {
	switch v := v.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	case *loader.LocalRequire:
		return r.requireFunc(v)
	case *model.Meta:
		return r.moduleObject(v)
	default:
		return r.vm.ToValue(v)
	}
}

// moduleObject exposes m to a factory. Assigning module.exports replaces the
// export.
func (r *Runtime) moduleObject(m *model.Meta) *goja.Object {
	vm := r.vm
	obj := vm.NewObject()
	_ = obj.Set("id", m.ID)
	_ = obj.Set("uri", m.URL)
	getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return r.toJS(m.Exports) })
	setter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		m.Exports = fromJS(call.Argument(0))
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("exports", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// fromJS keeps script values as goja values; undefined and null become nil.
func fromJS(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v
}
