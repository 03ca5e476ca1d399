package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luma/agi/protocol"
	"github.com/luma/agi/transport"
)

var envOut string

func init() {
	flags := EnvCmd.Flags()

	flags.StringVarP(&envOut, "out", "o", "", "Write the variables to this file instead of stderr")
}

var EnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the AGI variables of the channel as JSON",
	Long: `Print the AGI variables of the channel as JSON

Reads the variable block Asterisk sends when the script starts and prints
it as a single JSON object, keys without their agi_ prefix.

Usage
	agi env
	agi env -o /tmp/agi-env.json

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		header, err := protocol.ReadHeader(cmd.Context(), transport.NewStream(cmd.InOrStdin(), io.Discard))
		if err != nil {
			return err
		}

		data, err := header.MarshalJSON()
		if err != nil {
			return err
		}

		out, closeOut, err := openOutput(cmd, envOut)
		if err != nil {
			return err
		}

		defer func() {
			if cerr := closeOut(); err == nil {
				err = cerr
			}
		}()

		_, err = fmt.Fprintln(out, string(data))
		return err
	},
}
