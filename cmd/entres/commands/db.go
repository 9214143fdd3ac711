package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/db"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the entres database",
	Long: `db - Manage the entres SQLite database

The database holds indexed documents and entity models (when models.source is
"database"). Migrations are embedded in the binary and applied automatically by
every command that opens the database.

Examples:
  entres db status                 # Show applied and pending migrations
  entres db migrate                # Apply pending migrations
  entres db migrate --db-path x.db # Migrate a specific database`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runDbStatus,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatusCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	pterm.Success.Println("Database is up to date")
	return nil
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	path := dbPathFlag
	if path == "" {
		var err error
		if path, err = am.GetDatabasePath(); err != nil {
			return errors.Wrap(err, "failed to get database path")
		}
	}

	// Open without migrating so pending migrations stay visible
	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	status, err := db.Status(database)
	if err != nil {
		return errors.Wrap(err, "failed to read migration status")
	}

	data := pterm.TableData{{"VERSION", "FILE", "STATUS"}}
	pending := 0
	for _, s := range status {
		state := pterm.Green("applied")
		if !s.Applied {
			state = pterm.Yellow("pending")
			pending++
		}
		data = append(data, []string{s.Version, s.File, state})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n%s\n", path, table)
	if pending > 0 {
		pterm.Warning.Printfln("%d pending migration(s), run 'entres db migrate'", pending)
	}
	return nil
}
