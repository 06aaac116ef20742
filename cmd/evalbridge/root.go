package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/caffeineduck/evalbridge/bridge"
	"github.com/caffeineduck/evalbridge/client"
	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/internal/config"
	"github.com/caffeineduck/evalbridge/language/golang"
	"github.com/caffeineduck/evalbridge/language/starlark"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evalbridge [port]",
		Short: "Remote code-execution bridge over TCP",
		Long: `evalbridge - evaluate code in one persistent interpreter over a local socket.

Each TCP connection carries one request and gets one reply:

  EXIT            stop the bridge (reply RESULT:ok)
  IMPORT:<name>   import a module into the shared namespace
  PING            liveness check (reply PONG)
  <code>          evaluate code; bindings persist across requests

Without a subcommand the bridge is served, as with "evalbridge serve".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	addServeFlags(root)

	root.AddCommand(newServeCmd(), newSendCmd(), newPingCmd(), newStopCmd(), newReplCmd())
	return root
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func addClientFlags(cmd *cobra.Command) {
	defaultAddr := net.JoinHostPort(bridge.DefaultHost, strconv.Itoa(bridge.DefaultPort))
	cmd.Flags().StringP("addr", "a", defaultAddr, "Bridge address host:port")
	cmd.Flags().Duration("timeout", client.DefaultTimeout, "Per-request timeout")
}

func newClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.New(addr, client.WithTimeout(timeout))
}

func newLanguage(cfg config.Config) (executor.Language, error) {
	switch cfg.LanguageName() {
	case starlark.Name:
		return starlark.New(), nil
	case golang.Name:
		return golang.New(golang.WithAllowedImports(cfg.AllowImports...)), nil
	default:
		return nil, fmt.Errorf("unknown language %q: use starlark or go", cfg.Language)
	}
}
