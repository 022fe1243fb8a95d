package root

import (
	"github.com/spf13/cobra"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
	"github.com/helpdesk/hdtelemetry/pkg/useragent"
	"github.com/helpdesk/hdtelemetry/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  `Display the version and commit hash`,
		Args:  cobra.NoArgs,
		Run:   runVersionCommand,
	}
}

func runVersionCommand(cmd *cobra.Command, _ []string) {
	out := cli.NewPrinter(cmd.OutOrStdout())

	out.Printf("hdtelemetry version %s\n", version.Version)
	out.Printf("Commit: %s\n", version.Commit)
	out.Printf("User-Agent: %s\n", useragent.Header)
}
