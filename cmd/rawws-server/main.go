// Rawws-server is a standalone RFC 6455 WebSocket server.
//
// It performs the HTTP upgrade handshake and the framing layer itself,
// on plain TCP or behind TLS, and runs a JSON echo application on every
// upgraded connection. Frames can be captured to JSON lines for protocol
// analysis, and the server can advertise itself on the local network over
// mDNS.
//
// Usage:
//
//	rawws-server serve [flags]
//
// See 'rawws-server --help' for all commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rawws/internal/protocol"
	"github.com/muurk/rawws/internal/ui"
	"github.com/muurk/rawws/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rawws-server",
		Short: "Raw RFC 6455 WebSocket server",
		Long: `A standalone WebSocket server that owns the whole protocol stack.

The server parses the HTTP upgrade request, writes the 101 response byte for
byte, and encodes and decodes frames itself. Every upgraded connection runs a
JSON echo application: text messages are parsed as JSON and answered with a
timestamped envelope, binary messages are echoed unchanged.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newServeCmd(&serveOptions{}))
	rootCmd.AddCommand(newAcceptCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <key>",
		Short: "Compute the Sec-WebSocket-Accept value for a key",
		Long: `Compute the Sec-WebSocket-Accept header value the server sends for a
client's Sec-WebSocket-Key. Useful when debugging handshakes captured from a
device or a proxy.`,
		Example: `  rawws-server accept dGhlIHNhbXBsZSBub25jZQ==`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			err := protocol.ValidateKey(key)
			var accept string
			if err == nil {
				accept, err = protocol.Accept(key)
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.NewFailureResult("Invalid Sec-WebSocket-Key", err,
					"The key is the base64 encoding of 16 random bytes (24 characters)",
					"Copy the header value without surrounding quotes or whitespace",
				).Render())
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Handshake accept value",
				ui.Field{Key: "Key", Value: key},
				ui.Field{Key: "Accept", Value: accept},
			).Render())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rawws-server %s\n%s\n", version.Full(), version.Runtime())
		},
	}
}
