package starlark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/hostfunc"
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.uber.org/zap"
)

const contextKey = "evalbridge.context"

var moduleNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// builtinModules are importable without any configuration.
var builtinModules = map[string]starlark.Value{
	"math":   starlarkmath.Module,
	"time":   starlarktime.Module,
	"json":   starlarkjson.Module,
	"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
}

// positional names the parameters host functions accept without keywords.
var positional = map[string][]string{
	"kv_get":       {"key", "default"},
	"kv_set":       {"key", "value"},
	"kv_delete":    {"key"},
	"http_get":     {"url", "headers"},
	"http_request": {"method", "url", "body", "headers"},
	"fs_read":      {"path"},
	"fs_write":     {"path", "content"},
	"fs_list":      {"path"},
	"fs_exists":    {"path"},
	"fs_stat":      {"path"},
	"fs_mkdir":     {"path"},
	"fs_remove":    {"path"},
}

// loader resolves module names for IMPORT and load(). Resolution order:
// built-in library modules, host modules from the registry, then .star and
// .wasm files on the module path.
type loader struct {
	env     executor.Env
	logger  *zap.Logger
	cache   map[string]starlark.Value
	loading map[string]bool
	wasm    []*executor.WasmModule
}

func newLoader(env executor.Env, logger *zap.Logger) *loader {
	return &loader{
		env:     env,
		logger:  logger,
		cache:   make(map[string]starlark.Value),
		loading: make(map[string]bool),
	}
}

func (l *loader) module(thread *starlark.Thread, name string) (starlark.Value, error) {
	if !moduleNameRE.MatchString(name) {
		return nil, fmt.Errorf("invalid module name: %w", executor.ErrModuleNotFound)
	}
	if mod, ok := l.cache[name]; ok {
		return mod, nil
	}
	if mod, ok := builtinModules[name]; ok {
		return mod, nil
	}
	if l.env.Registry != nil {
		if members, ok := l.env.Registry.Module(name); ok {
			mod := hostModule(name, members)
			l.cache[name] = mod
			return mod, nil
		}
	}

	for _, dir := range l.env.ModulePath {
		base := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(name, ".", "/")))

		if src, err := os.ReadFile(base + ".star"); err == nil {
			mod, err := l.execFile(thread, name, base+".star", src)
			if err != nil {
				return nil, err
			}
			l.cache[name] = mod
			return mod, nil
		}

		if bin, err := os.ReadFile(base + ".wasm"); err == nil {
			mod, err := l.loadWasm(thread, name, bin)
			if err != nil {
				return nil, err
			}
			l.cache[name] = mod
			return mod, nil
		}
	}

	return nil, executor.ErrModuleNotFound
}

// load implements starlark.Thread.Load so that load("math", "sqrt") and
// load("helpers.star", "f") resolve through the same table as IMPORT.
func (l *loader) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	name := strings.TrimSuffix(module, ".star")
	mod, err := l.module(thread, name)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", module, err)
	}
	if m, ok := mod.(*starlarkstruct.Module); ok {
		return m.Members, nil
	}
	return starlark.StringDict{bindingName(name): mod}, nil
}

func (l *loader) execFile(thread *starlark.Thread, name, path string, src []byte) (starlark.Value, error) {
	if l.loading[name] {
		return nil, fmt.Errorf("cycle in load graph at %s", name)
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	child := &starlark.Thread{
		Name:  "load " + name,
		Print: thread.Print,
		Load:  l.load,
	}
	child.SetLocal(contextKey, threadContext(thread))

	predeclared := starlark.StringDict{"struct": builtinModules["struct"]}
	globals, err := starlark.ExecFile(child, path, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug("loaded script module", zap.String("module", name), zap.String("path", path))
	return &starlarkstruct.Module{Name: name, Members: globals}, nil
}

func (l *loader) loadWasm(thread *starlark.Thread, name string, bin []byte) (starlark.Value, error) {
	if l.env.Executor == nil {
		return nil, errors.New("wasm modules unavailable")
	}
	wm, err := l.env.Executor.LoadWasm(threadContext(thread), name, bin)
	if err != nil {
		return nil, err
	}
	l.wasm = append(l.wasm, wm)

	members := make(starlark.StringDict)
	for _, export := range wm.Exports() {
		members[export] = wasmBuiltin(wm, export)
	}
	return &starlarkstruct.Module{Name: name, Members: members}, nil
}

func (l *loader) close() error {
	var errs []error
	for _, wm := range l.wasm {
		if err := wm.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	l.wasm = nil
	return errors.Join(errs...)
}

func hostModule(name string, members map[string]hostfunc.Func) *starlarkstruct.Module {
	dict := make(starlark.StringDict, len(members))
	for member, fn := range members {
		dict[member] = hostBuiltin(name, member, fn)
	}
	return &starlarkstruct.Module{Name: name, Members: dict}
}

// hostBuiltin adapts a host function. Positional arguments are named by
// the positional table; keyword arguments pass through unchanged.
func hostBuiltin(module, member string, fn hostfunc.Func) *starlark.Builtin {
	params := positional[module+"_"+member]

	return starlark.NewBuiltin(module+"."+member, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > len(params) {
			return nil, fmt.Errorf("%s: got %d positional arguments, want at most %d", b.Name(), len(args), len(params))
		}

		goArgs := make(map[string]any, len(args)+len(kwargs))
		for i, arg := range args {
			v, err := toGo(arg)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), params[i], err)
			}
			goArgs[params[i]] = v
		}
		for _, kv := range kwargs {
			key := string(kv[0].(starlark.String))
			if _, dup := goArgs[key]; dup {
				return nil, fmt.Errorf("%s: got multiple values for %s", b.Name(), key)
			}
			v, err := toGo(kv[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), key, err)
			}
			goArgs[key] = v
		}

		result, err := fn(threadContext(thread), goArgs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return fromGo(result), nil
	})
}

func wasmBuiltin(wm *executor.WasmModule, export string) *starlark.Builtin {
	return starlark.NewBuiltin(wm.Name()+"."+export, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}

		goArgs := make([]any, len(args))
		for i, arg := range args {
			switch v := arg.(type) {
			case starlark.Int:
				n, ok := v.Int64()
				if !ok {
					return nil, fmt.Errorf("%s: argument %d out of range", b.Name(), i+1)
				}
				goArgs[i] = n
			case starlark.Float:
				goArgs[i] = float64(v)
			default:
				return nil, fmt.Errorf("%s: argument %d: want int or float, got %s", b.Name(), i+1, arg.Type())
			}
		}

		result, err := wm.Call(threadContext(thread), export, goArgs...)
		if err != nil {
			return nil, err
		}
		return fromGo(result), nil
	})
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// bindingName returns the last component of a dotted module name.
func bindingName(module string) string {
	if i := strings.LastIndexByte(module, '.'); i >= 0 {
		return module[i+1:]
	}
	return module
}
