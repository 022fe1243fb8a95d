package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/helpdesk/hdtelemetry/pkg/logging"
)

type rootFlags struct {
	enableOtel  bool
	debugMode   bool
	logFilePath string
	configPath  string
	logFile     io.Closer
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "hdtelemetry",
		Short: "hdtelemetry - helpdesk telemetry gate",
		Long:  "hdtelemetry reads a helpdesk site's PostHog settings and only forwards analytics when the site allows it",
		Example: `  hdtelemetry settings
  hdtelemetry capture ticket_created --data user=jane@example.com
  hdtelemetry serve --listen 127.0.0.1:8787`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := logging.Setup(flags.debugMode, flags.logFilePath)
			if err != nil {
				// If logging setup fails, fall back to stderr so we still get logs
				logging.Fallback(cmd.ErrOrStderr(), flags.debugMode)
				slog.Warn("Failed to open debug log file", "error", err)
			} else {
				flags.logFile = logFile
			}

			if flags.enableOtel {
				if err := initOTelSDK(cmd.Context()); err != nil {
					slog.Warn("Failed to initialize OpenTelemetry SDK", "error", err)
				} else {
					slog.Debug("OpenTelemetry SDK initialized successfully")
				}
			}

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("Failed to close log file", "error", err)
				}
			}
			return nil
		},
		// If no subcommand is specified, show help
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// --log_file and --log-file are the same flag
	cmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.enableOtel, "otel", "o", false, "Enable OpenTelemetry tracing")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: ~/.hdtelemetry/hdtelemetry.debug.log; only used with --debug)")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the config file (default: ~/.config/hdtelemetry/config.yaml)")

	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "advanced", Title: "Advanced Commands:"})

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSettingsCmd(&flags))
	cmd.AddCommand(newStatusCmd(&flags))
	cmd.AddCommand(newCaptureCmd(&flags))
	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newConfigCmd(&flags))

	return cmd
}

func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	} else if _, ok := errors.AsType[RuntimeError](err); ok {
		// Runtime errors have already been printed by the command itself
	} else {
		// Command line usage errors - show the error and usage
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stderr)
		if strings.HasPrefix(err.Error(), "unknown command ") || strings.HasPrefix(err.Error(), "accepts ") {
			_ = rootCmd.Usage()
		}
	}

	return err
}

// RuntimeError wraps runtime errors to distinguish them from usage errors
type RuntimeError struct {
	Err error
}

func (e RuntimeError) Error() string {
	return e.Err.Error()
}

func (e RuntimeError) Unwrap() error {
	return e.Err
}
