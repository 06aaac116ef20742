package hostfunc

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Func is a host function callable from scripts. Arguments arrive as a map
// of Go values converted from the script's keyword arguments.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry holds host functions keyed by "<module>_<member>" names.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module returns the members registered under module, keyed by member name
// with the "<module>_" prefix removed. ok is false when nothing matches.
func (r *Registry) Module(module string) (members map[string]Func, ok bool) {
	prefix := module + "_"

	r.mu.RLock()
	defer r.mu.RUnlock()

	members = make(map[string]Func)
	for name, fn := range r.funcs {
		if member, found := strings.CutPrefix(name, prefix); found && member != "" {
			members[member] = fn
		}
	}
	return members, len(members) > 0
}

// Modules returns the distinct module names in the registry, sorted.
func (r *Registry) Modules() []string {
	seen := make(map[string]bool)
	for _, name := range r.List() {
		if module, _, found := strings.Cut(name, "_"); found {
			seen[module] = true
		}
	}
	modules := make([]string, 0, len(seen))
	for m := range seen {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	return modules
}
