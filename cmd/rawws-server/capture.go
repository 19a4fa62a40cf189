package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rawws/internal/server"
	"github.com/muurk/rawws/internal/ui"
)

func newCaptureCmd() *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "capture <file>",
		Short: "Summarize a frame capture file",
		Long: `Read a capture-YYYYMMDD.jsonl file written by 'serve --capture-dir' and
print frame counts per direction and opcode. With --dump every frame is
printed with a hex dump of its payload.`,
		Example: `  rawws-server capture captures/capture-20260301.jsonl
  rawws-server capture captures/capture-20260301.jsonl --dump`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			if dump {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				err = server.ReadCapture(f, func(r server.CaptureRecord) error {
					return dumpRecord(out, r)
				})
				_ = f.Close()
				if err != nil {
					return err
				}
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			summary, err := server.SummarizeCapture(f)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.RenderCaptureSummary(path, summary, ui.GetTerminalWidth()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "Print every frame with a payload hex dump")
	return cmd
}

func dumpRecord(w io.Writer, r server.CaptureRecord) error {
	payload, err := hex.DecodeString(r.PayloadHex)
	if err != nil {
		return fmt.Errorf("frame at %s: bad payload hex: %w", r.Timestamp.Format("15:04:05.000"), err)
	}
	fmt.Fprintf(w, "%s %s %s %s fin=%t masked=%t len=%d\n",
		r.Timestamp.Format("15:04:05.000"), r.ConnID, r.Direction, r.Opcode, r.FIN, r.Masked, r.PayloadLen)
	if len(payload) > 0 {
		fmt.Fprint(w, hex.Dump(payload))
	}
	fmt.Fprintln(w)
	return nil
}
