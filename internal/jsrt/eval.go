package jsrt

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/seantiz/modloader/internal/loader"
)

// Eval compiles and runs a module body. It is called by the loader on the
// loop goroutine.
func (r *Runtime) Eval(name, url, source string, opts loader.EvalOptions) error {
	prog, err := goja.Compile(url, source, false)
	if err != nil {
		return &loader.SyntaxError{Module: name, URL: url, Err: err}
	}

	define := r.vm.Get("define").ToObject(r.vm)
	if opts.AMD {
		_ = define.Set("amd", r.vm.NewObject())
		defer func() { _ = define.Delete("amd") }()
	}

	_, err = r.vm.RunProgram(prog)
	return err
}

// globals resolves dotted paths against the JS global object.
type globals struct {
	r *Runtime
}

func (g *globals) Get(path string) any {
	var cur goja.Value = g.r.vm.GlobalObject()
	for part := range strings.SplitSeq(path, ".") {
		obj, ok := cur.(*goja.Object)
		if !ok {
			return nil
		}
		cur = obj.Get(part)
		if cur == nil || goja.IsUndefined(cur) || goja.IsNull(cur) {
			return nil
		}
	}
	return cur
}

func (g *globals) Set(path string, v any) {
	vm := g.r.vm
	parts := strings.Split(path, ".")
	obj := vm.GlobalObject()
	for _, part := range parts[:len(parts)-1] {
		next, ok := obj.Get(part).(*goja.Object)
		if !ok {
			next = vm.NewObject()
			_ = obj.Set(part, next)
		}
		obj = next
	}
	_ = obj.Set(parts[len(parts)-1], g.r.toJS(v))
}
