package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caffeineduck/evalbridge/bridge"
	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/hostfunc"
	"github.com/caffeineduck/evalbridge/internal/config"
	"github.com/caffeineduck/evalbridge/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [port]",
		Short: "Serve the bridge on a local TCP port",
		Long: `Serve the bridge until an EXIT request, SIGINT or SIGTERM (exit status 0).

One connection is handled at a time and every request runs in the same
namespace. Settings come from defaults, then --config (.yaml, .yml or .toml),
then flags that are set explicitly; a positional port wins over --port.

Binding failure, a failing --bootstrap script, an invalid configuration or
the idle timeout expiring exit with status 1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	def := config.Default()
	f := cmd.Flags()

	f.String("host", def.Host, "Interface to bind")
	f.IntP("port", "p", def.Port, "Port to listen on")
	f.StringP("lang", "l", def.Language, "Language: starlark (alias python) or go")
	f.String("config", "", "Config file (.yaml, .yml or .toml)")
	f.String("bootstrap", "", "Script evaluated into the namespace before listening")
	f.String("result-name", def.ResultName, "Binding reported as RESULT after each request")
	f.Duration("idle-timeout", time.Duration(def.IdleTimeout), "Exit when no connection arrives for this long (0 disables)")
	f.Duration("read-timeout", time.Duration(def.ReadTimeout), "Wait this long for request data (0 disables)")
	f.Duration("write-timeout", time.Duration(def.WriteTimeout), "Give up sending a reply after this long (0 disables)")
	f.StringSlice("module-path", nil, "Directory searched by IMPORT for .star and .wasm modules (repeatable)")
	f.Bool("kv", false, "Enable the kv host module")
	f.StringSlice("allow-host", nil, "Allow the http host module to reach host (repeatable)")
	f.StringSlice("mount", nil, "Expose a directory to the fs host module as virtual:host:mode (repeatable)")
	f.StringSlice("allow-import", nil, "Restrict Go imports to these paths (repeatable)")
	f.String("wasm-cache", "", `Wasm compilation cache directory, or "auto" for the user cache dir`)
	f.String("memory", "", "Wasm memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	f.String("log-level", def.Log.Level, "Log level: debug, info, warn, error")
	f.String("log-format", def.Log.Format, "Log format: json or console")
}

// loadConfig merges defaults, the config file and explicitly set flags.
func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	f := cmd.Flags()

	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	list := func(name string, dst *[]string) {
		if f.Changed(name) {
			*dst, _ = f.GetStringSlice(name)
		}
	}
	dur := func(name string, dst *config.Duration) {
		if f.Changed(name) {
			d, _ := f.GetDuration(name)
			*dst = config.Duration(d)
		}
	}

	str("host", &cfg.Host)
	str("lang", &cfg.Language)
	str("bootstrap", &cfg.Bootstrap)
	str("result-name", &cfg.ResultName)
	str("wasm-cache", &cfg.WasmCache)
	str("memory", &cfg.Memory)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	dur("idle-timeout", &cfg.IdleTimeout)
	dur("read-timeout", &cfg.ReadTimeout)
	dur("write-timeout", &cfg.WriteTimeout)
	list("module-path", &cfg.ModulePath)
	list("allow-host", &cfg.AllowHosts)
	list("mount", &cfg.Mounts)
	list("allow-import", &cfg.AllowImports)
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("kv") {
		cfg.KV, _ = f.GetBool("kv")
	}

	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return cfg, fmt.Errorf("invalid port %q", args[0])
		}
		cfg.Port = port
	}

	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ns, closeNamespace, err := newNamespace(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNamespace()

	srv := bridge.NewServer(ns,
		bridge.WithIdleTimeout(time.Duration(cfg.IdleTimeout)),
		bridge.WithReadTimeout(time.Duration(cfg.ReadTimeout)),
		bridge.WithWriteTimeout(time.Duration(cfg.WriteTimeout)),
		bridge.WithLogger(logger),
		bridge.WithOutput(cmd.OutOrStdout()),
	)
	if err := srv.Listen(cfg.Host, cfg.Port); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("signal received, shutting down", zap.Stringer("signal", sig))
			return srv.Close()
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}

// newNamespace builds the host modules, executor and shared namespace. The
// returned func releases all of them.
func newNamespace(ctx context.Context, cfg config.Config, logger *zap.Logger) (*executor.Namespace, func(), error) {
	registry := hostfunc.NewRegistry()
	if cfg.KV {
		hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
	}
	if len(cfg.AllowHosts) > 0 {
		hostfunc.NewHTTP(hostfunc.HTTPConfig{AllowedHosts: cfg.AllowHosts}).Register(registry)
	}
	mounts, err := cfg.ParsedMounts()
	if err != nil {
		return nil, nil, err
	}
	if len(mounts) > 0 {
		hostfunc.NewFS(mounts).Register(registry)
	}

	execOpts := []executor.ExecutorOption{executor.WithExecutorLogger(logger)}
	switch cfg.WasmCache {
	case "":
	case "auto":
		execOpts = append(execOpts, executor.WithDiskCache())
	default:
		execOpts = append(execOpts, executor.WithDiskCache(cfg.WasmCache))
	}
	pages, err := config.ParseMemory(cfg.Memory)
	if err != nil {
		return nil, nil, err
	}
	if pages > 0 {
		execOpts = append(execOpts, executor.WithMemoryLimit(pages))
	}

	lang, err := newLanguage(cfg)
	if err != nil {
		return nil, nil, err
	}

	exec, err := executor.New(registry, execOpts...)
	if err != nil {
		return nil, nil, err
	}

	nsOpts := []executor.NamespaceOption{
		executor.WithResultName(cfg.ResultName),
		executor.WithModulePath(cfg.ModulePath...),
		executor.WithLogger(logger),
	}
	if cfg.Bootstrap != "" {
		src, err := os.ReadFile(cfg.Bootstrap)
		if err != nil {
			exec.Close()
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		nsOpts = append(nsOpts, executor.WithBootstrap(string(src)))
	}

	ns, err := exec.NewNamespace(ctx, lang, nsOpts...)
	if err != nil {
		exec.Close()
		return nil, nil, err
	}
	logger.Info("namespace ready",
		zap.String("lang", ns.Language()),
		zap.Strings("modules", registry.Modules()),
		zap.Int("bindings", len(ns.Names())),
	)

	return ns, func() {
		ns.Close()
		exec.Close()
	}, nil
}
