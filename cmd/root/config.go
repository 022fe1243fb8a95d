package root

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
	"github.com/helpdesk/hdtelemetry/pkg/userconfig"
)

func newConfigCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long:  "View and manage user-level hdtelemetry configuration stored in ~/.config/hdtelemetry/config.yaml",
		Example: `  # Show the current configuration
  hdtelemetry config show

  # Point hdtelemetry at a helpdesk site
  hdtelemetry config set site_url https://support.example.com

  # Prompt for the API secret without echoing it
  hdtelemetry config set api_secret

  # Show the path to the config file
  hdtelemetry config path`,
		GroupID: "advanced",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShowCommand(cmd, root)
		},
	}

	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigSetCmd(root))
	cmd.AddCommand(newConfigPathCmd(root))

	return cmd
}

func newConfigShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		Long:  "Display the current user configuration in YAML format, with the API secret masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShowCommand(cmd, root)
		},
	}
}

func newConfigSetCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> [value]",
		Short:     "Set a configuration value",
		Long:      "Set a configuration value. Valid keys: " + strings.Join(userconfig.Keys, ", "),
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: userconfig.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSetCommand(cmd, root, args)
		},
	}
}

func newConfigPathCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the path to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli.NewPrinter(cmd.OutOrStdout()).Println(root.configFilePath())
			return nil
		},
	}
}

func runConfigShowCommand(cmd *cobra.Command, root *rootFlags) error {
	out := cli.NewPrinter(cmd.OutOrStdout())

	config, err := root.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.MarshalWithOptions(config.Redacted(), yaml.IndentSequence(true), yaml.UseSingleQuote(false))
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}

	out.Printf("%s", data)
	return nil
}

func runConfigSetCommand(cmd *cobra.Command, root *rootFlags, args []string) error {
	out := cli.NewPrinter(cmd.OutOrStdout())
	key := args[0]

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		v, err := readSecretValue(cmd.InOrStdin(), cmd.ErrOrStderr(), key)
		if err != nil {
			return err
		}
		value = v
	}

	config, err := root.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Set(key, value); err != nil {
		return err
	}
	if err := root.saveConfig(config); err != nil {
		return printErr(cli.NewPrinter(cmd.ErrOrStderr()), fmt.Errorf("failed to save config: %w", err))
	}

	out.Printf("Set %s in %s\n", key, root.configFilePath())
	return nil
}

// readSecretValue prompts for a value without echoing it. Only
// credentials may be omitted from the command line, and only when stdin
// is a terminal.
func readSecretValue(stdin io.Reader, prompt io.Writer, key string) (string, error) {
	if key != "api_key" && key != "api_secret" {
		return "", fmt.Errorf("accepts 2 arg(s) for %s, received 1", key)
	}

	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.New("stdin is not a terminal: pass the value as an argument")
	}

	fmt.Fprintf(prompt, "%s: ", key)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return strings.TrimSpace(string(b)), nil
}
