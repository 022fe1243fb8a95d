package root

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
)

type captureFlags struct {
	root *rootFlags
	data []string
	user string
}

func newCaptureCmd(root *rootFlags) *cobra.Command {
	flags := captureFlags{root: root}

	cmd := &cobra.Command{
		Use:   "capture <event>",
		Short: "Capture a single event through the telemetry gate",
		Long: `Fetch the site's telemetry settings and, when they allow it, send
<app>_<event> to PostHog. Nothing leaves the machine when telemetry is disabled.`,
		Example: `  hdtelemetry capture ticket_created
  hdtelemetry capture ticket_replied --user agent@example.com --data ticket=42`,
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
		RunE:    flags.runCaptureCommand,
	}

	cmd.Flags().StringArrayVar(&flags.data, "data", nil, "Event data as key=value (repeatable)")
	cmd.Flags().StringVar(&flags.user, "user", "", "User the event is attributed to")

	return cmd
}

func (f *captureFlags) runCaptureCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())
	errOut := cli.NewPrinter(cmd.ErrOrStderr())
	event := args[0]

	data, err := cli.ParseData(f.data)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("user") {
		data.Set("user", f.user)
	}

	config, err := f.root.loadConfig()
	if err != nil {
		return printErr(errOut, fmt.Errorf("failed to load config: %w", err))
	}

	provider, err := newProvider(config)
	if err != nil {
		return printErr(errOut, err)
	}

	gate := newGate(config, provider)
	if err := gate.Load(ctx); err != nil {
		slog.Warn("Telemetry settings unavailable", "error", err)
	}

	var opts []telemetry.CaptureOptions
	if data.Len() > 0 {
		opts = append(opts, telemetry.CaptureOptions{Data: cli.DataMap(data)})
	}
	gate.Capture(ctx, event, opts...)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := gate.Close(closeCtx); err != nil {
		return printErr(errOut, fmt.Errorf("failed to deliver event: %w", err))
	}

	out.PrintCapture(gate.App()+"_"+event, data, gate.Snapshot().Enabled)
	return nil
}
