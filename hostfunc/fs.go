package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows writes to existing files.
	MountReadWrite
	// MountReadWriteCreate also allows creating files and directories.
	MountReadWriteCreate
)

func (m MountMode) String() string {
	switch m {
	case MountReadOnly:
		return "ro"
	case MountReadWrite:
		return "rw"
	case MountReadWriteCreate:
		return "rwc"
	default:
		return fmt.Sprintf("MountMode(%d)", int(m))
	}
}

// ParseMountMode accepts "ro", "rw" or "rwc".
func ParseMountMode(s string) (MountMode, error) {
	switch s {
	case "ro":
		return MountReadOnly, nil
	case "rw":
		return MountReadWrite, nil
	case "rwc":
		return MountReadWriteCreate, nil
	default:
		return 0, fmt.Errorf("invalid mount mode %q (expected ro, rw, or rwc)", s)
	}
}

// Mount maps a virtual path seen by scripts onto a host directory.
type Mount struct {
	VirtualPath string
	HostPath    string
	Mode        MountMode
}

// ParseMount parses "virtual:host:mode".
func ParseMount(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return Mount{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}
	mode, err := ParseMountMode(parts[2])
	if err != nil {
		return Mount{}, err
	}
	return Mount{VirtualPath: parts[0], HostPath: parts[1], Mode: mode}, nil
}

const (
	DefaultFSMaxFileSize   = 10 << 20
	DefaultFSMaxWriteSize  = 10 << 20
	DefaultFSMaxPathLength = 4096
)

type fsLimits struct {
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
}

// FSOption adjusts FS limits.
type FSOption func(*fsLimits)

func WithMaxFileSize(n int64) FSOption  { return func(l *fsLimits) { l.maxFileSize = n } }
func WithMaxWriteSize(n int64) FSOption { return func(l *fsLimits) { l.maxWriteSize = n } }
func WithMaxPathLength(n int) FSOption  { return func(l *fsLimits) { l.maxPathLength = n } }

// FS gives scripts access to explicitly mounted directories only.
type FS struct {
	mounts []Mount
	limits fsLimits
}

// NewFS normalizes mounts; entries whose host path cannot be resolved are
// dropped.
func NewFS(mounts []Mount, opts ...FSOption) *FS {
	limits := fsLimits{
		maxFileSize:   DefaultFSMaxFileSize,
		maxWriteSize:  DefaultFSMaxWriteSize,
		maxPathLength: DefaultFSMaxPathLength,
	}
	for _, opt := range opts {
		opt(&limits)
	}

	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			VirtualPath: "/" + strings.Trim(m.VirtualPath, "/"),
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}
	return &FS{mounts: normalized, limits: limits}
}

// Register installs the fs_* functions.
func (f *FS) Register(r *Registry) {
	r.Register("fs_read", f.Read)
	r.Register("fs_write", f.Write)
	r.Register("fs_list", f.List)
	r.Register("fs_exists", f.Exists)
	r.Register("fs_stat", f.Stat)
	r.Register("fs_mkdir", f.Mkdir)
	r.Register("fs_remove", f.Remove)
}

// resolve maps a virtual path to a host path and its mount.
func (f *FS) resolve(args map[string]any, need MountMode) (string, *Mount, error) {
	virtualPath, ok := args["path"].(string)
	if !ok || virtualPath == "" {
		return "", nil, errors.New("path required")
	}
	if f.limits.maxPathLength > 0 && len(virtualPath) > f.limits.maxPathLength {
		return "", nil, errors.New("path exceeds max length")
	}

	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))
	for i := range f.mounts {
		m := &f.mounts[i]
		if vp != m.VirtualPath && !strings.HasPrefix(vp, m.VirtualPath+"/") {
			continue
		}
		if need > m.Mode {
			return "", nil, fmt.Errorf("permission denied: %s mount", m.Mode)
		}
		hostPath := filepath.Join(m.HostPath, strings.TrimPrefix(vp, m.VirtualPath))
		if hostPath != m.HostPath && !strings.HasPrefix(hostPath, m.HostPath+string(filepath.Separator)) {
			return "", nil, errors.New("permission denied: path escape attempt")
		}
		return hostPath, m, nil
	}
	return "", nil, errors.New("permission denied: path not in any mount")
}

// Read returns the contents of a file as a string.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	hostPath, _, err := f.resolve(args, MountReadOnly)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, notFound(err, args)
	}
	if f.limits.maxFileSize > 0 && info.Size() > f.limits.maxFileSize {
		return nil, errors.New("file exceeds max size")
	}
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, notFound(err, args)
	}
	return string(data), nil
}

// Write replaces a file's contents. New files need a rwc mount.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	content, ok := args["content"].(string)
	if !ok {
		return nil, errors.New("content required")
	}
	if f.limits.maxWriteSize > 0 && int64(len(content)) > f.limits.maxWriteSize {
		return nil, errors.New("content exceeds max write size")
	}
	hostPath, m, err := f.resolve(args, MountReadWrite)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(hostPath); os.IsNotExist(statErr) && m.Mode != MountReadWriteCreate {
		return nil, errors.New("permission denied: cannot create new files")
	}
	if err := os.WriteFile(hostPath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write error: %w", err)
	}
	return "ok", nil
}

// List returns directory entries as maps with name, is_dir and size.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	hostPath, _, err := f.resolve(args, MountReadOnly)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return nil, notFound(err, args)
	}

	result := make([]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{"name": entry.Name(), "is_dir": entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
		}
		result = append(result, item)
	}
	return result, nil
}

// Exists reports false for paths outside every mount instead of failing.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	hostPath, _, err := f.resolve(args, MountReadOnly)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(hostPath)
	return err == nil, nil
}

func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	hostPath, _, err := f.resolve(args, MountReadOnly)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, notFound(err, args)
	}
	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}

func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	hostPath, _, err := f.resolve(args, MountReadWriteCreate)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(hostPath, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir error: %w", err)
	}
	return "ok", nil
}

// Remove deletes a file or an empty directory.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	hostPath, _, err := f.resolve(args, MountReadWrite)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(hostPath); err != nil {
		return nil, notFound(err, args)
	}
	return "ok", nil
}

func notFound(err error, args map[string]any) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("file not found: %v", args["path"])
	}
	return err
}
