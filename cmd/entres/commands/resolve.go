package commands

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/input"
	"github.com/teranos/entres/resolution/job"
	"github.com/teranos/entres/resolution/model"
	"github.com/teranos/entres/resolution/storage"
)

// ResolveCmd runs one resolution job
var ResolveCmd = &cobra.Command{
	Use:   "resolve [entity_type]",
	Short: "Run a resolution job and print the result",
	Long: `resolve - Run a resolution job and print the result

The input is read from --input (or stdin) and has the same shape as the body
of POST /_zentity/resolution. With an entity type the model comes from the
model store; with --model it comes from a file; otherwise the input must embed
it under "model".

Documents are searched in the SQLite database, or in an NDJSON file loaded
into memory with --docs.

Job options use their API names and may be repeated:
  -p max_hops=3 -p _explanation -p search.preference=_local

Examples:
  entres resolve person -i neo.json
  entres resolve -m person.yaml --docs people.ndjson -i neo.json -o table
  echo '{"attributes":{"email":["neo@zion.net"]}}' | entres resolve person`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResolve,
}

// resolveRequest is everything resolve needs besides configuration
type resolveRequest struct {
	EntityType string
	ModelPath  string
	InputPath  string
	DocsPath   string
	DBPath     string
	Params     []string
}

var (
	resolveFlags  resolveRequest
	resolveOutput string
)

func init() {
	f := ResolveCmd.Flags()
	f.StringVarP(&resolveFlags.ModelPath, "model", "m", "", "Model file (JSON or YAML) instead of the model store")
	f.StringVarP(&resolveFlags.InputPath, "input", "i", "-", "Input file, - for stdin")
	f.StringVar(&resolveFlags.DocsPath, "docs", "", "Search an NDJSON file loaded into memory instead of the database")
	f.StringVar(&resolveFlags.DBPath, "db-path", "", "Database path (overrides config)")
	f.StringArrayVarP(&resolveFlags.Params, "param", "p", nil, "Job option name=value (repeatable)")
	f.StringVarP(&resolveOutput, "output", "o", "json", "Output format: json, table")
}

func runResolve(cmd *cobra.Command, args []string) error {
	req := resolveFlags
	if len(args) == 1 {
		req.EntityType = args[0]
	}
	if resolveOutput != "json" && resolveOutput != "table" {
		return errors.Newf("unsupported output: %s (supported: json, table)", resolveOutput)
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := resolve(ctx, cfg, req, cmd.InOrStdin())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resolveOutput == "table" {
		err = renderTable(out, res)
	} else {
		err = renderJSON(out, res)
	}
	if err != nil {
		return err
	}
	if res.Failed {
		return errors.Wrapf(res.Err, "resolution %s", res.Termination)
	}
	return nil
}

// resolve builds and runs one job. Setup failures are returned as errors; a job
// that ran and failed is reported through its result.
func resolve(ctx context.Context, cfg *am.Config, req resolveRequest, stdin io.Reader) (*job.Result, error) {
	if req.InputPath == "" {
		req.InputPath = "-"
	}
	readers := 0
	for _, p := range []string{req.ModelPath, req.InputPath, req.DocsPath} {
		if p == "-" {
			readers++
		}
	}
	if readers > 1 {
		return nil, errors.NewInvalidRequestError("only one of --model, --input, and --docs can read stdin")
	}

	opts, err := job.OptionsFromConfig(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	opts.Pretty = true
	params, err := parseParams(req.Params)
	if err != nil {
		return nil, err
	}
	if err := opts.ApplyParams(params); err != nil {
		return nil, err
	}

	body, err := readInput(req.InputPath, stdin)
	if err != nil {
		return nil, err
	}

	var database *sql.DB
	defer func() {
		if database != nil {
			database.Close()
		}
	}()
	openDB := func() (*sql.DB, error) {
		if database == nil {
			var err error
			if database, err = openDatabase(req.DBPath); err != nil {
				return nil, err
			}
		}
		return database, nil
	}

	m, err := resolveModel(ctx, cfg, req, stdin, openDB)
	if err != nil {
		return nil, err
	}
	in, err := input.Parse(body, m)
	if err != nil {
		return nil, err
	}

	var store resolution.DocumentStore
	if req.DocsPath != "" {
		mem := storage.NewMemoryDocumentStore()
		r, err := openNDJSON(req.DocsPath, stdin)
		if err != nil {
			return nil, err
		}
		n, err := storage.LoadNDJSON(ctx, r, mem, 0)
		r.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", req.DocsPath)
		}
		logger.Logger.Debugw("Loaded documents into memory", "path", req.DocsPath, logger.FieldCount, n)
		store = mem
	} else {
		conn, err := openDB()
		if err != nil {
			return nil, err
		}
		store = storage.NewSQLiteDocumentStore(conn, logger.ComponentLogger("store"))
	}

	j, err := job.New(job.Config{
		EntityType: req.EntityType,
		Input:      in,
		Store:      store,
		Options:    opts,
		Logger:     logger.ComponentLogger("job"),
	})
	if err != nil {
		return nil, err
	}
	return j.Execute(ctx), nil
}

// resolveModel picks the model: a file, the model store, or none (embedded in the input)
func resolveModel(ctx context.Context, cfg *am.Config, req resolveRequest, stdin io.Reader, openDB func() (*sql.DB, error)) (*model.Model, error) {
	switch {
	case req.ModelPath != "":
		return readModelFile(req.ModelPath, stdin)

	case req.EntityType == "":
		return nil, nil

	case cfg.Models.Source == am.ModelSourceDirectory:
		if err := model.ValidateEntityType(req.EntityType); err != nil {
			return nil, err
		}
		dir, err := storage.NewDirectoryModelProvider(cfg.Models.Directory, logger.ComponentLogger("models"))
		if err != nil {
			return nil, err
		}
		return dir.GetModel(ctx, req.EntityType)

	default:
		if err := model.ValidateEntityType(req.EntityType); err != nil {
			return nil, err
		}
		conn, err := openDB()
		if err != nil {
			return nil, err
		}
		return storage.NewSQLiteModelStore(conn, logger.ComponentLogger("models")).GetModel(ctx, req.EntityType)
	}
}

// readInput reads the job input from path, or stdin for "-"
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read input from stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read input %s", path)
	}
	return data, nil
}

// parseParams turns name=value pairs into query parameters. A bare name means "true".
func parseParams(pairs []string) (url.Values, error) {
	params := url.Values{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.NewInvalidRequestError("invalid param %q, want name=value", p)
		}
		if !ok {
			value = "true"
		}
		params.Add(name, value)
	}
	return params, nil
}

func renderJSON(w io.Writer, res *job.Result) error {
	data, err := res.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(string(data), "\n"))
	return err
}

// renderTable prints one row per hit, then a summary
func renderTable(w io.Writer, res *job.Result) error {
	data := pterm.TableData{{"HOP", "QUERY", "INDEX", "ID", "ATTRIBUTES"}}
	for _, h := range res.Hits {
		data = append(data, []string{
			fmt.Sprint(h.Hop),
			fmt.Sprint(h.Query),
			h.Index,
			h.ID,
			formatValues(h.Attributes),
		})
	}

	if len(res.Hits) > 0 {
		table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, table)
	}

	fmt.Fprintf(w, "%d hits in %d hops (%s), took %s\n", len(res.Hits), res.Hops, res.Termination, res.Took.Round(time.Microsecond))
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if res.Failed {
		fmt.Fprintf(w, "error: %s\n", res.Err)
	}
	return nil
}

func formatValues(set *model.ValueSet) string {
	if set == nil {
		return ""
	}
	parts := make([]string, 0, set.Len())
	for _, attr := range set.Attributes() {
		for _, v := range set.Values(attr) {
			parts = append(parts, attr+"="+v.String())
		}
	}
	return strings.Join(parts, ", ")
}

// indentJSON pretty-prints data without reordering its keys
func indentJSON(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, errors.Wrap(err, "failed to indent JSON")
	}
	return buf.Bytes(), nil
}
