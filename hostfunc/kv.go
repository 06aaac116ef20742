package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 * 1024
	DefaultKVMaxEntries   = 1000
)

// KVConfig bounds the store so scripts cannot grow it without limit.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   DefaultKVMaxKeySize,
		MaxValueSize: DefaultKVMaxValueSize,
		MaxEntries:   DefaultKVMaxEntries,
	}
}

// KVOption adjusts a KVConfig.
type KVOption func(*KVConfig)

func WithMaxKeySize(n int) KVOption   { return func(c *KVConfig) { c.MaxKeySize = n } }
func WithMaxValueSize(n int) KVOption { return func(c *KVConfig) { c.MaxValueSize = n } }
func WithMaxEntries(n int) KVOption   { return func(c *KVConfig) { c.MaxEntries = n } }

// KV is an in-memory string store. It lives as long as the bridge process,
// alongside the shared namespace.
type KV struct {
	cfg  KVConfig
	data map[string]string
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig, opts ...KVOption) *KV {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &KV{cfg: cfg, data: make(map[string]string)}
}

// Register installs kv_get, kv_set, kv_delete and kv_keys.
func (s *KV) Register(r *Registry) {
	r.Register("kv_get", s.Get)
	r.Register("kv_set", s.Set)
	r.Register("kv_delete", s.Delete)
	r.Register("kv_keys", s.Keys)
}

func (s *KV) key(args map[string]any) (string, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return "", errors.New("key required")
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return "", fmt.Errorf("key exceeds max size of %d bytes", s.cfg.MaxKeySize)
	}
	return key, nil
}

// Get returns the stored value, the "default" argument, or nil.
func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return args["default"], nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	raw, ok := args["value"]
	if !ok || raw == nil {
		return nil, errors.New("value required")
	}
	val, ok := raw.(string)
	if !ok {
		val = fmt.Sprint(raw)
	}
	if s.cfg.MaxValueSize > 0 && len(val) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size of %d bytes", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("store full: max %d entries", s.cfg.MaxEntries)
	}
	s.data[key] = val
	return "ok", nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return "ok", nil
}

// Keys returns the stored keys, sorted.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}
