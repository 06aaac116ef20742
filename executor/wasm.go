package executor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// WasmModule is an instantiated WebAssembly module whose exported functions
// can be called from scripts.
type WasmModule struct {
	name string
	mod  api.Module
}

// LoadWasm compiles (or reuses) bin and instantiates it. WASI is available
// to the module; a reactor's _initialize export runs on instantiation, a
// command's _start does not.
func (e *Executor) LoadWasm(ctx context.Context, name string, bin []byte) (*WasmModule, error) {
	compiled, err := e.getCompiled(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize")

	mod, err := e.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}

	e.logger.Debug("loaded wasm module", zap.String("module", name))
	return &WasmModule{name: name, mod: mod}, nil
}

func (m *WasmModule) Name() string {
	return m.name
}

// Exports returns the names of the exported functions, sorted.
func (m *WasmModule) Exports() []string {
	defs := m.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes an exported function. Arguments may be int, int64 or float64
// and are converted to the parameter types the function declares. A single
// result is returned as int64 or float64; several results as []any.
func (m *WasmModule) Call(ctx context.Context, fn string, args ...any) (any, error) {
	f := m.mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("%s has no exported function %q", m.name, fn)
	}

	def := f.Definition()
	params := def.ParamTypes()
	if len(args) != len(params) {
		return nil, fmt.Errorf("%s.%s takes %d arguments, got %d", m.name, fn, len(params), len(args))
	}

	stack := make([]uint64, len(params))
	for i, t := range params {
		v, err := encodeValue(t, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s argument %d: %w", m.name, fn, i+1, err)
		}
		stack[i] = v
	}

	out, err := f.Call(ctx, stack...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", m.name, fn, err)
	}

	results := def.ResultTypes()
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return decodeValue(results[0], out[0]), nil
	default:
		values := make([]any, len(results))
		for i, t := range results {
			values[i] = decodeValue(t, out[i])
		}
		return values, nil
	}
}

func (m *WasmModule) Close(ctx context.Context) error {
	return m.mod.Close(ctx)
}

func encodeValue(t api.ValueType, v any) (uint64, error) {
	var i int64
	var f float64
	switch n := v.(type) {
	case int:
		i, f = int64(n), float64(n)
	case int64:
		i, f = n, float64(n)
	case float64:
		if (t == api.ValueTypeI32 || t == api.ValueTypeI64) && !(n >= math.MinInt64 && n < math.MaxInt64) {
			return 0, fmt.Errorf("%w: %v does not fit %s", ErrOutOfRange, n, api.ValueTypeName(t))
		}
		i, f = int64(n), n
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}

	switch t {
	case api.ValueTypeI32:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %v does not fit i32", ErrOutOfRange, v)
		}
		return api.EncodeI32(int32(i)), nil
	case api.ValueTypeI64:
		return api.EncodeI64(i), nil
	case api.ValueTypeF32:
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %v does not fit f32", ErrOutOfRange, v)
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		return api.EncodeF64(f), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func decodeValue(t api.ValueType, v uint64) any {
	switch t {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	default:
		return int64(v)
	}
}
