package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution/storage"
)

// DocsCmd represents the docs command
var DocsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Load documents into the document store",
	Long: `docs - Manage documents in the SQLite document store

Documents are NDJSON, one per line:

  {"_index":"users","_id":"neo","_source":{"name":"Neo","email":"neo@zion.net"}}

Loading a document whose (_index, _id) already exists replaces it and bumps
its version.

Examples:
  entres docs load people.ndjson         # Index a file
  cat people.ndjson | entres docs load - # Index stdin
  entres docs count users                # Count documents in a collection`,
}

var docsLoadCmd = &cobra.Command{
	Use:   "load <file|->",
	Short: "Index NDJSON documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsLoad,
}

var docsCountCmd = &cobra.Command{
	Use:   "count <collection>",
	Short: "Count documents in a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsCount,
}

var (
	docsDBPath    string
	docsBatchSize int
)

func init() {
	DocsCmd.PersistentFlags().StringVar(&docsDBPath, "db-path", "", "Database path (overrides config)")
	docsLoadCmd.Flags().IntVar(&docsBatchSize, "batch-size", 0, "Documents per transaction (0 = default)")

	DocsCmd.AddCommand(docsLoadCmd)
	DocsCmd.AddCommand(docsCountCmd)
}

// openNDJSON opens path for reading, or stdin for "-"
func openNDJSON(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return f, nil
}

func runDocsLoad(cmd *cobra.Command, args []string) error {
	r, err := openNDJSON(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer r.Close()

	database, err := openDatabase(docsDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	store := storage.NewSQLiteDocumentStore(database, logger.ComponentLogger("docs"))
	n, err := storage.LoadNDJSON(cmd.Context(), r, store, docsBatchSize)
	if err != nil {
		return errors.Wrapf(err, "loaded %d documents before failing", n)
	}
	pterm.Success.Printfln("Indexed %d documents", n)
	return nil
}

func runDocsCount(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(docsDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	store := storage.NewSQLiteDocumentStore(database, logger.ComponentLogger("docs"))
	n, err := store.Count(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
