// Package hostfunc provides the host modules request code can import.
//
// A host function is a Go function taking keyword arguments:
//
//	func(ctx context.Context, args map[string]any) (any, error)
//
// Functions are registered under "<module>_<member>" names; [Registry.Module]
// groups them so a language adapter can expose "kv_get" as kv.get.
//
//	registry := hostfunc.NewRegistry()
//	hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
//	hostfunc.NewHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"api.example.com"}}).Register(registry)
//	hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	}).Register(registry)
//
// Nothing is registered by default. HTTP is limited to allowed hosts, file
// access to mounted paths in their mode, and every module has size limits.
package hostfunc
