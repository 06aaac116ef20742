package hostfunc

import (
	"context"
	"strings"
	"testing"
)

func noop(ctx context.Context, args map[string]any) (any, error) { return nil, nil }

func TestRegistryModule(t *testing.T) {
	r := NewRegistry()
	r.Register("kv_get", noop)
	r.Register("kv_set", noop)
	r.Register("fs_read", noop)
	r.Register("kv_", noop)
	r.Register("plain", noop)

	members, ok := r.Module("kv")
	if !ok {
		t.Fatal("expected kv module")
	}
	if len(members) != 2 {
		t.Errorf("expected 2 kv members, got %d", len(members))
	}

	if _, ok := r.Module("http"); ok {
		t.Error("http module should not exist")
	}

	if got := strings.Join(r.Modules(), ","); got != "fs,kv" {
		t.Errorf("Modules() = %s, want fs,kv", got)
	}
}

