package executor

import (
	"go.uber.org/zap"
)

// DefaultResultName is the binding whose value an evaluation reports.
const DefaultResultName = "result"

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
	logger           *zap.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger: zap.NewNop(),
	}
}

// WithDiskCache enables a persistent compilation cache for wasm modules.
// Optionally provide a custom directory; otherwise uses
// ~/.cache/evalbridge or XDG_CACHE_HOME/evalbridge.
//
// Examples:
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to wasm modules.
// Each page is 64KB. Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithExecutorLogger sets the logger for module compilation events.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)

// NamespaceOption configures a Namespace.
type NamespaceOption func(*namespaceConfig)

type namespaceConfig struct {
	resultName string
	modulePath []string
	bootstrap  string
	logger     *zap.Logger
}

func defaultNamespaceConfig() namespaceConfig {
	return namespaceConfig{
		resultName: DefaultResultName,
		logger:     zap.NewNop(),
	}
}

// WithResultName changes the binding reported after each evaluation.
func WithResultName(name string) NamespaceOption {
	return func(c *namespaceConfig) {
		if name != "" {
			c.resultName = name
		}
	}
}

// WithModulePath adds directories searched by IMPORT for script and wasm
// modules.
func WithModulePath(dirs ...string) NamespaceOption {
	return func(c *namespaceConfig) {
		c.modulePath = append(c.modulePath, dirs...)
	}
}

// WithBootstrap evaluates code into the namespace when it is created.
// A failing bootstrap fails NewNamespace.
func WithBootstrap(code string) NamespaceOption {
	return func(c *namespaceConfig) {
		c.bootstrap = code
	}
}

func WithLogger(l *zap.Logger) NamespaceOption {
	return func(c *namespaceConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
