package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/evalbridge/client"
	"github.com/caffeineduck/evalbridge/protocol"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	promptPrimary  = ">>> "
	promptContinue = "... "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive prompt against a running bridge",
		Long: `Start an interactive prompt that sends each entry to a running bridge.

Every entry is one request on its own connection, so bindings persist in
the bridge namespace between entries.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to leave without stopping the bridge, or press Ctrl+D.
Send EXIT to stop the bridge itself.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.evalbridge_history)")
	addClientFlags(cmd)
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".evalbridge_history")
	}

	c := newClient(cmd)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptPrimary,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "evalbridge REPL on %s (type 'exit' to quit, Ctrl+D to exit)\n", c.Addr())
	return replLoop(cmd.Context(), rl, c, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// lineReader is the part of *readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

func replLoop(ctx context.Context, rl lineReader, c *client.Client, stdout, stderr io.Writer) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(promptPrimary)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(promptContinue)
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(promptPrimary)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed == "exit" || trimmed == "quit" {
			return nil
		}

		req := protocol.Parse(line)
		resp, err := c.Do(ctx, req)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		printResponse(resp, stdout, stderr)

		if req.Action == protocol.ActionExit {
			return nil
		}
	}
}

func printResponse(resp protocol.Response, stdout, stderr io.Writer) {
	switch {
	case resp.Status == protocol.StatusError:
		fmt.Fprintln(stderr, resp.Payload)
	case resp.Status == protocol.StatusPong:
		fmt.Fprintln(stdout, protocol.Pong)
	case resp == protocol.Ack():
	default:
		fmt.Fprintln(stdout, resp.Payload)
	}
}
