package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/cmd/entres/commands"
	"github.com/teranos/entres/logger"
)

var rootCmd = &cobra.Command{
	Use:   "entres",
	Short: "entres - multi-hop entity resolution",
	Long: `entres - multi-hop entity resolution over document stores.

Given an entity model and a few known attribute values, entres repeatedly
queries the configured collections, harvests new attribute values from every
matching document, and queries again until nothing new turns up.

Available commands:
  resolve - Run a resolution job and print the result
  serve   - Start the resolution HTTP/WebSocket server
  models  - Manage entity models
  docs    - Load documents into the document store
  db      - Manage the entres database
  am      - Manage entres configuration ("I am")
  version - Show version information

Examples:
  entres docs load people.ndjson           # Index documents
  entres models put person person.yaml     # Store an entity model
  entres resolve person -i input.json      # Resolve against the database
  entres serve                             # Start the server on :9200`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' prints configuration on stdout; keep its output clean
		if cmd.Name() == "show" {
			return nil
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		level := logger.VerbosityToLevel(verbosity)
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
			if verbosity == 0 && cmd.Name() == "serve" {
				level = logger.ParseLevel(cfg.Log.Level)
			}
		}
		if err := logger.InitializeWithLevel(jsonLogs, level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.DocsCmd)
	rootCmd.AddCommand(commands.ModelsCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
