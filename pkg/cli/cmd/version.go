package cmd

import (
	"fmt"

	"github.com/LENAX/wengine/pkg/cli/output"
	"github.com/spf13/cobra"
)

// 版本信息（编译时注入）
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.outputJSON {
				return output.PrintJSON(opts.out, map[string]string{
					"version":    Version,
					"git_commit": GitCommit,
					"build_time": BuildTime,
				})
			}
			fmt.Fprintf(opts.out, "wengine\n")
			fmt.Fprintf(opts.out, "  Version:    %s\n", Version)
			fmt.Fprintf(opts.out, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(opts.out, "  Build Time: %s\n", BuildTime)
			return nil
		},
	}
}
