package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caffeineduck/evalbridge/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// Result holds the output and metadata from one evaluation.
type Result struct {
	Output   string
	Value    string
	Bound    bool
	Duration time.Duration
	Error    error
}

// Executor owns the WebAssembly runtime, the compiled module cache and the
// host function registry shared by every namespace it creates.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	registry *hostfunc.Registry
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor with the given host function registry.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	if registry == nil {
		registry = hostfunc.NewRegistry()
	}

	return &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		registry: registry,
		logger:   cfg.logger,
	}, nil
}

// Registry returns the host functions exposed to scripts.
func (e *Executor) Registry() *hostfunc.Registry {
	return e.registry
}

// Run evaluates code in a throwaway namespace.
func (e *Executor) Run(ctx context.Context, lang Language, code string, opts ...NamespaceOption) Result {
	start := time.Now()

	ns, err := e.NewNamespace(ctx, lang, opts...)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}
	defer ns.Close()

	result := ns.Exec(ctx, code)
	result.Duration = time.Since(start)
	return result
}

// getCompiled returns a cached compiled module, compiling if necessary.
// Modules are keyed by the SHA-256 of their bytes so the same binary
// imported under different names compiles once.
func (e *Executor) getCompiled(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	sum := sha256.Sum256(bin)
	key := hex.EncodeToString(sum[:])

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	if compiled, ok := e.compiled[key]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	e.compiled[key] = compiled
	e.logger.Debug("compiled wasm module", zap.String("sha256", key[:12]))
	return compiled, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "evalbridge")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "evalbridge")
	}
	return filepath.Join(os.TempDir(), "evalbridge-cache")
}
