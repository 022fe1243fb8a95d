package root

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
)

type settingsFlags struct {
	root   *rootFlags
	asJSON bool
}

func newSettingsCmd(root *rootFlags) *cobra.Command {
	flags := settingsFlags{root: root}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Fetch and print the site's telemetry settings",
		Long:  "Ask the configured helpdesk site for its PostHog settings and report whether telemetry would be enabled",
		Example: `  hdtelemetry settings
  hdtelemetry settings --json`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    flags.runSettingsCommand,
	}

	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the raw settings as JSON")

	return cmd
}

func (f *settingsFlags) runSettingsCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())
	errOut := cli.NewPrinter(cmd.ErrOrStderr())

	config, err := f.root.loadConfig()
	if err != nil {
		return printErr(errOut, fmt.Errorf("failed to load config: %w", err))
	}

	provider, err := newProvider(config)
	if err != nil {
		return printErr(errOut, err)
	}

	s, err := provider.Fetch(ctx)
	if err != nil {
		return printErr(errOut, fmt.Errorf("failed to fetch telemetry settings: %w", err))
	}

	if f.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	out.PrintSettings(s)
	return nil
}
