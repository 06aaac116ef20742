// Package config holds the bridge settings and loads them from YAML or TOML
// files. Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caffeineduck/evalbridge/bridge"
	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/hostfunc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "90s" or "10m" in config files.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText is used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Config is the complete bridge configuration.
type Config struct {
	Host         string   `yaml:"host" toml:"host"`
	Port         int      `yaml:"port" toml:"port"`
	Language     string   `yaml:"lang" toml:"lang"`
	Bootstrap    string   `yaml:"bootstrap" toml:"bootstrap"`
	ResultName   string   `yaml:"result_name" toml:"result_name"`
	IdleTimeout  Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	ReadTimeout  Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"`
	ModulePath   []string `yaml:"module_path" toml:"module_path"`
	KV           bool     `yaml:"kv" toml:"kv"`
	AllowHosts   []string `yaml:"allow_hosts" toml:"allow_hosts"`
	Mounts       []string `yaml:"mounts" toml:"mounts"`
	AllowImports []string `yaml:"allow_imports" toml:"allow_imports"`
	WasmCache    string   `yaml:"wasm_cache" toml:"wasm_cache"`
	Memory       string   `yaml:"memory" toml:"memory"`
	Log          Log      `yaml:"log" toml:"log"`
}

// Languages lists accepted language names; "python" selects starlark.
var Languages = []string{"starlark", "python", "go"}

func Default() Config {
	return Config{
		Host:         bridge.DefaultHost,
		Port:         bridge.DefaultPort,
		Language:     "starlark",
		ResultName:   executor.DefaultResultName,
		IdleTimeout:  Duration(bridge.DefaultIdleTimeout),
		ReadTimeout:  Duration(bridge.DefaultReadTimeout),
		WriteTimeout: Duration(bridge.DefaultWriteTimeout),
		Log:          Log{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml, .yml or .toml. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return cfg, fmt.Errorf("parse %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q (expected .yaml, .yml or .toml)", ext)
	}

	return cfg, nil
}

// LanguageName resolves aliases.
func (c Config) LanguageName() string {
	if c.Language == "python" {
		return "starlark"
	}
	return c.Language
}

// ParsedMounts parses the "virtual:host:mode" mount specs.
func (c Config) ParsedMounts() ([]hostfunc.Mount, error) {
	mounts := make([]hostfunc.Mount, 0, len(c.Mounts))
	for _, spec := range c.Mounts {
		m, err := hostfunc.ParseMount(spec)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// ParseMemory maps a wasm memory limit name to pages. An empty string means
// no limit.
func ParseMemory(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "1mb":
		return executor.MemoryLimit1MB, nil
	case "16mb":
		return executor.MemoryLimit16MB, nil
	case "64mb":
		return executor.MemoryLimit64MB, nil
	case "256mb":
		return executor.MemoryLimit256MB, nil
	case "1gb":
		return executor.MemoryLimit1GB, nil
	default:
		return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb or 1gb)", s)
	}
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	known := false
	for _, l := range Languages {
		known = known || c.Language == l
	}
	if !known {
		errs = append(errs, fmt.Errorf("unknown language %q (expected one of %s)", c.Language, strings.Join(Languages, ", ")))
	}

	if c.ResultName == "" {
		errs = append(errs, errors.New("result name must not be empty"))
	}
	if c.IdleTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if len(c.AllowImports) > 0 && c.LanguageName() != "go" {
		errs = append(errs, errors.New("allow_imports only applies to the go language"))
	}
	if _, err := ParseMemory(c.Memory); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ParsedMounts(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
