package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caffeineduck/evalbridge/protocol"
	"github.com/spf13/cobra"
)

// errRequestFailed is returned when the bridge replies with ERROR.
var errRequestFailed = errors.New("bridge reported an error")

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Send one request and print the raw reply",
		Long: `Send one request to a running bridge and print its reply verbatim.

The request is taken from --code, a file, or stdin, in that order. Protocol
keywords are sent as-is, so "send -c PING" is a ping. Exits with status 1
when the reply is an ERROR.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSend,
	}
	cmd.Flags().StringP("code", "c", "", "Request text")
	addClientFlags(cmd)
	return cmd
}

func newPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a bridge is answering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(cmd).Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Encode())
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a bridge to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(cmd).Exit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Encode())
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	text, err := readRequest(cmd, args)
	if err != nil {
		return err
	}

	reply, err := newClient(cmd).Send(cmd.Context(), text)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)

	if resp, err := protocol.Decode(reply); err == nil && !resp.OK() {
		return errRequestFailed
	}
	return nil
}

func readRequest(cmd *cobra.Command, args []string) (string, error) {
	if code, _ := cmd.Flags().GetString("code"); code != "" {
		return code, nil
	}

	var data []byte
	var err error
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return "", fmt.Errorf("read request: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("nothing to send: use -c 'code', a file, or stdin")
	}
	return string(data), nil
}
