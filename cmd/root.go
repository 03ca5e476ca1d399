package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/agi/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "agi",
	Short: "Asterisk Gateway Interface client tools",
	Long: `Asterisk Gateway Interface client tools

Run as an AGI script, the channel is connected to stdin and stdout. Logs
and reports are written to stderr.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(EnvCmd)
	RootCmd.AddCommand(ExecCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// openOutput returns where reports go: the named file, or the command's
// stderr when path is empty. stdout is reserved for the channel.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.ErrOrStderr(), func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}

	return f, f.Close, nil
}
