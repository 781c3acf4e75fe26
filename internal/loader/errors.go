package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/modloader/internal/model"
)

// Failure message templates. {id} expands to the chain of failing module
// names and {url} to the URL of the outermost one.
const (
	tmplLoad         = "failed to load {id} from {url}"
	tmplExecute      = "Failed to execute {id}"
	tmplDependencies = "Failed to resolve dependencies of {id}"
	tmplFactory      = "failed to execute module factory for {id}"
	tmplDefine       = "failed to define {id}"
)

var (
	// ErrUnknownModule is returned for operations on a module the registry
	// has never seen.
	ErrUnknownModule = errors.New("unknown module")

	// ErrScriptLoad is the cause of an async load that failed on every URL.
	ErrScriptLoad = errors.New("script load error")

	// ErrDuplicateDefinition is reported for a nameless definition that
	// follows a named definition of the requested module.
	ErrDuplicateDefinition = errors.New("duplicate module definition")

	// ErrAnonymousDefinition is reported in strict mode for a nameless
	// definition that has no requested name left to adopt.
	ErrAnonymousDefinition = errors.New("anonymous module definition without a name to adopt")
)

// ModuleError is the error every failed module settles with. Modules lists
// the chain of module names from the outermost failure inward.
type ModuleError struct {
	Template string
	Module   string
	Modules  string
	URL      string
	Cause    error
}

// newModuleError wraps cause for module m. When cause is itself a
// ModuleError, its chain is appended; if it was built from the same template
// the intermediate level is dropped so repeated wrapping stays readable.
func newModuleError(template string, m *model.Module, cause error) *ModuleError {
	modules := "'" + m.Name + "'"
	var inner *ModuleError
	if errors.As(cause, &inner) {
		modules += "\n -> " + strings.ReplaceAll(inner.Modules, " -> ", "  -> ")
		if inner.Template == template {
			cause = inner.Cause
		}
	}
	return &ModuleError{
		Template: template,
		Module:   m.Name,
		Modules:  modules,
		URL:      m.URL,
		Cause:    cause,
	}
}

func (e *ModuleError) Error() string {
	msg := strings.Replace(e.Template, "{id}", e.Modules, 1)
	msg = strings.Replace(msg, "{url}", e.URL, 1)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ModuleError) Unwrap() error { return e.Cause }

// SyntaxError reports a module body that failed to parse.
type SyntaxError struct {
	Module string
	URL    string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s (%s): %v", e.Module, e.URL, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// FactoryError reports a module factory that returned an error or panicked.
type FactoryError struct {
	Module string
	Err    error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("factory of %s: %v", e.Module, e.Err)
}

func (e *FactoryError) Unwrap() error { return e.Err }

// DefinitionError reports a definition-queue policy violation. Err is
// ErrDuplicateDefinition or ErrAnonymousDefinition.
type DefinitionError struct {
	Module string
	Err    error
}

func (e *DefinitionError) Error() string {
	if e.Module == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (requested %s)", e.Err, e.Module)
}

func (e *DefinitionError) Unwrap() error { return e.Err }
