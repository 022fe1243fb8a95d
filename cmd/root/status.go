package root

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
)

type statusFlags struct {
	root *rootFlags
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	flags := statusFlags{root: root}

	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the telemetry gate would enable",
		Long: `Load the site's settings into a telemetry gate and print the resulting state.
Unlike settings, this honours TELEMETRY_ENABLED and the analytics client setup.`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    flags.runStatusCommand,
	}
}

func (f *statusFlags) runStatusCommand(cmd *cobra.Command, _ []string) error {
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

	gate := newGate(config, provider)
	defer func() { _ = gate.Close(ctx) }()
	if err := gate.Load(ctx); err != nil {
		slog.Warn("Telemetry settings unavailable", "error", err)
	}

	out.PrintState(gate.App(), gate.Snapshot())
	return nil
}
