package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage entres configuration",
	Long: `am - Manage entres configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (ENTRES_* prefix, e.g. ENTRES_SERVER_PORT)
3. Project config (./am.toml, searched up the directory tree)
4. User config (~/.entres/am.toml)
5. System config (/etc/entres/am.toml)
6. Default values

Examples:
  entres am show                  # Show current configuration as TOML
  entres am show --format json    # Show configuration as JSON
  entres am show --sources        # Show where every setting came from
  entres am init                  # Write defaults to ~/.entres/am.toml
  entres am validate              # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective entres configuration merged from all sources",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration as TOML. The path defaults to the user
config (~/.entres/am.toml), or ./am.toml with --project. An existing file is
only replaced with --force; the previous content is kept as .back1.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmValidate,
}

var (
	configFormat  string
	configSources bool
	initProject   bool
	initForce     bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "Show the source of every setting")
	amInitCmd.Flags().BoolVar(&initProject, "project", false, "Write ./am.toml instead of the user config")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if configSources {
		settings, err := am.Settings()
		if err != nil {
			return err
		}
		data := pterm.TableData{{"KEY", "VALUE", "SOURCE"}}
		for _, s := range settings {
			source := string(s.Source)
			if s.SourcePath != "" {
				source += " (" + s.SourcePath + ")"
			}
			data = append(data, []string{s.Key, fmt.Sprint(s.Value), source})
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, table)
		return nil
	}

	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	data, err := encodeConfig(cfg, am.GetViper().AllSettings(), configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(out, string(data))
	return nil
}

// encodeConfig renders the effective configuration. JSON and YAML use the
// merged settings map so keys keep their config-file spelling.
func encodeConfig(cfg *am.Config, settings map[string]interface{}, format string) ([]byte, error) {
	switch format {
	case "toml":
		data, err := am.EncodeTOML(cfg)
		if err != nil {
			return nil, err
		}
		return append([]byte("# entres configuration\n"), data...), nil
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return append([]byte("# entres configuration\n"), data...), nil
	default:
		return nil, errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path, err := initPath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return errors.WithHint(errors.Newf("%s already exists", path), "use --force to replace it")
	}

	cfg, err := am.DefaultConfig()
	if err != nil {
		return err
	}
	if err := am.WriteConfig(path, cfg); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote default configuration to %s", path)
	return nil
}

func initPath(args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case initProject:
		return am.ConfigFileName, nil
	}
	path := am.UserConfigPath()
	if path == "" {
		return "", errors.New("cannot determine home directory, pass a path")
	}
	return path, nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	// Load validates; a failure here is the answer
	if _, err := am.Load(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}
