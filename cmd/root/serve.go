package root

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
	"github.com/helpdesk/hdtelemetry/pkg/posthog"
	"github.com/helpdesk/hdtelemetry/pkg/server"
	"github.com/helpdesk/hdtelemetry/pkg/settings"
	"github.com/helpdesk/hdtelemetry/pkg/userconfig"
)

type serveFlags struct {
	root          *rootFlags
	listenAddr    string
	settingsFile  string
	bufferSize    int
	batchSize     int
	flushInterval time.Duration
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := serveFlags{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the telemetry relay server",
		Long: `Start an HTTP server that the desk UI or backend jobs can post events to.
Events only reach PostHog when the site's settings enable telemetry.`,
		Example: `  hdtelemetry serve
  hdtelemetry serve --listen unix:///run/hdtelemetry.sock
  hdtelemetry serve --settings-file posthog.yaml --flush-interval 1s`,
		GroupID: "advanced",
		Args:    cobra.NoArgs,
		RunE:    flags.runServeCommand,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", "", "Address to listen on (default: config listen, or "+defaultListenHelp+")")
	cmd.Flags().StringVar(&flags.settingsFile, "settings-file", "", "Read telemetry settings from a YAML file instead of the site")
	cmd.Flags().IntVar(&flags.bufferSize, "buffer-size", 0, "Events that may wait for delivery before new ones are dropped (default 1000)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Maximum events per PostHog batch request (default 100)")
	cmd.Flags().DurationVar(&flags.flushInterval, "flush-interval", 0, "How often queued events are sent to PostHog (default 5s)")

	return cmd
}

const defaultListenHelp = userconfig.DefaultListen

func (f *serveFlags) runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())
	errOut := cli.NewPrinter(cmd.ErrOrStderr())

	config, err := f.root.loadConfig()
	if err != nil {
		return printErr(errOut, fmt.Errorf("failed to load config: %w", err))
	}

	provider, err := f.provider(config)
	if err != nil {
		return printErr(errOut, err)
	}
	gate := newGate(config, provider,
		posthog.WithBufferSize(f.bufferSize),
		posthog.WithBatchSize(f.batchSize),
		posthog.WithFlushInterval(f.flushInterval),
	)

	addr := cmp.Or(f.listenAddr, config.ListenAddr())
	ln, err := server.Listen(ctx, addr)
	if err != nil {
		return printErr(errOut, fmt.Errorf("failed to listen on %s: %w", addr, err))
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	out.Println("Listening on " + ln.Addr().String())
	slog.Debug("Starting relay server", "site", config.SiteURL, "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The relay answers right away; guarded calls are no-ops until the
		// settings arrive.
		if err := gate.Load(ctx); err != nil {
			slog.Warn("Telemetry settings unavailable, relay stays disabled", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return server.New(gate).Serve(ctx, ln)
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if cerr := gate.Close(closeCtx); cerr != nil {
		slog.Error("Failed to flush telemetry", "error", cerr)
	}

	if err != nil {
		return printErr(errOut, err)
	}
	return nil
}

func (f *serveFlags) provider(config *userconfig.Config) (settings.Provider, error) {
	if f.settingsFile != "" {
		return fileProvider(f.settingsFile)
	}
	return newProvider(config)
}
