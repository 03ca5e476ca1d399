package gen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/agi/internal/meta"
)

var manDir string

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for the agi tools",
	Long: `Generate up-to-date man pages for every agi command, by default in
the "man" directory under the current directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := prepareDir(cmd, manDir)
		if err != nil {
			return err
		}

		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "AGI client tools Manual",
			Source:  fmt.Sprintf("agi %s", meta.Version),
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Fprintln(cmd.OutOrStdout(), "Generating man pages in", dir, "...")

		if err := doc.GenManTree(cmd.Root(), header, dir); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Done.")
		return nil
	},
}

func init() {
	dirFlag(ManPagesCmd, &manDir, "man/")
}
