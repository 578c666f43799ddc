package jsengine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	requirePkg "github.com/dop251/goja_nodejs/require"
	"github.com/skytrace/copilot/pkg/logger"
)

// Runtime is a goja runtime with print, console and require wired to the
// slot store and the logger.
type Runtime struct {
	*requirePkg.RequireModule
	*goja.Runtime
	l    logger.Logger
	slot string
	// imported lists the modules the script required.
	imported []string
}

func newRuntime(l logger.Logger, slot string, load func(string) ([]byte, error)) (*Runtime, error) {
	registry := requirePkg.NewRegistry(requirePkg.WithLoader(sourceLoader(load)))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{l: l, slot: slot}))
	runtime := goja.New()
	reqM := registry.Enable(runtime)
	console.Enable(runtime)

	r := &Runtime{
		Runtime:       runtime,
		RequireModule: reqM,
		l:             l,
		slot:          slot,
	}
	if err := runtime.Set("print", r.print); err != nil {
		return nil, err
	}
	if err := runtime.Set("require", r.require); err != nil {
		return nil, err
	}
	return r, nil
}

func sourceLoader(load func(string) ([]byte, error)) requirePkg.SourceLoader {
	return func(path string) ([]byte, error) {
		b, err := load(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, requirePkg.ModuleFileDoesNotExistError
		}
		return b, err
	}
}

func (r *Runtime) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, v := range call.Arguments {
		parts[i] = fmt.Sprint(v.Export())
	}
	r.l.Info("%s: %s", r.slot, strings.Join(parts, " "))
	return goja.Undefined()
}

func (r *Runtime) require(call goja.FunctionCall) goja.Value {
	modName := call.Argument(0).String()
	v, err := r.RequireModule.Require(modName)
	if err != nil {
		r.l.Warning("%s: require: failed to import module %s: %v", r.slot, modName, err)
		panic(r.NewGoError(err))
	}
	r.imported = append(r.imported, modName)
	return v
}

// printer routes console output to the logger.
type printer struct {
	l    logger.Logger
	slot string
}

func (p printer) Log(s string)   { p.l.Info("%s: %s", p.slot, s) }
func (p printer) Warn(s string)  { p.l.Warning("%s: %s", p.slot, s) }
func (p printer) Error(s string) { p.l.Error("%s: %s", p.slot, s) }
