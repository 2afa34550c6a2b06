package cli

import (
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd.OutOrStdout(), opts.Format)
			if p.json() {
				return p.JSON(map[string]string{
					"version":    opts.build.Version,
					"build_date": opts.build.BuildDate,
					"git_commit": opts.build.GitCommit,
					"go":         runtime.Version(),
				})
			}
			p.Line("fieldsync server")
			p.Line("Version:    %s", opts.build.Version)
			p.Line("Build Date: %s", opts.build.BuildDate)
			p.Line("Git Commit: %s", opts.build.GitCommit)
			return nil
		},
	}
}
