package commands

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/model"
	"github.com/teranos/entres/resolution/storage"
)

// ModelsCmd represents the models command
var ModelsCmd = &cobra.Command{
	Use:     "models",
	Aliases: []string{"model"},
	Short:   "Manage entity models",
	Long: `models - Manage entity models

Models are stored in the database or, when models.source is "directory", as
<entity_type>.json / <entity_type>.yaml files under models.directory.

Examples:
  entres models put person person.yaml   # Create or replace a model
  entres models get person               # Print a model as JSON
  entres models get person -f yaml       # Print a model as YAML
  entres models ls                       # List entity types
  entres models rm person                # Delete a model`,
}

var modelsPutCmd = &cobra.Command{
	Use:   "put <entity_type> <file|->",
	Short: "Create or replace a model from a JSON or YAML file",
	Args:  cobra.ExactArgs(2),
	RunE:  runModelsPut,
}

var modelsGetCmd = &cobra.Command{
	Use:   "get <entity_type>",
	Short: "Print a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsGet,
}

var modelsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List entity types with a model",
	Args:    cobra.NoArgs,
	RunE:    runModelsList,
}

var modelsRemoveCmd = &cobra.Command{
	Use:     "rm <entity_type>",
	Aliases: []string{"delete"},
	Short:   "Delete a model",
	Args:    cobra.ExactArgs(1),
	RunE:    runModelsRemove,
}

var (
	modelsDBPath string
	modelsFormat string
)

func init() {
	ModelsCmd.PersistentFlags().StringVar(&modelsDBPath, "db-path", "", "Database path (overrides config)")
	modelsGetCmd.Flags().StringVarP(&modelsFormat, "format", "f", "json", "Output format: json, yaml")

	ModelsCmd.AddCommand(modelsPutCmd)
	ModelsCmd.AddCommand(modelsGetCmd)
	ModelsCmd.AddCommand(modelsListCmd)
	ModelsCmd.AddCommand(modelsRemoveCmd)
}

// modelStore is the configured model store and whatever must be closed with it
type modelStore struct {
	resolution.ModelStore
	database *sql.DB // nil for the directory provider
	dir      *storage.DirectoryModelProvider
}

func (s *modelStore) Close() error {
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}

// openModelStore opens the model store selected by models.source
func openModelStore(cfg *am.Config, dbPath string) (*modelStore, error) {
	if cfg.Models.Source == am.ModelSourceDirectory {
		dir, err := storage.NewDirectoryModelProvider(cfg.Models.Directory, logger.ComponentLogger("models"))
		if err != nil {
			return nil, err
		}
		return &modelStore{ModelStore: dir, dir: dir}, nil
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return &modelStore{
		ModelStore: storage.NewSQLiteModelStore(database, logger.ComponentLogger("models")),
		database:   database,
	}, nil
}

func loadModelStore() (*modelStore, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return openModelStore(cfg, modelsDBPath)
}

// readModelFile parses a model file. YAML is recognised by extension, or for
// stdin ("-") by content that does not start with '{'.
func readModelFile(path string, stdin io.Reader) (*model.Model, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return model.ParseYAML(data)
	case ".json":
		return model.Parse(data)
	}
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "{") {
		return model.Parse(data)
	}
	return model.ParseYAML(data)
}

// encodeModel renders a model as indented JSON or as YAML with the declared key order
func encodeModel(m *model.Model, format string) ([]byte, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return indentJSON(data)
	case "yaml":
		// Decoding into a yaml.Node keeps the model's section and member order
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, errors.Wrap(err, "failed to convert model to YAML")
		}
		blockStyle(&node)
		return yaml.Marshal(&node)
	default:
		return nil, errors.Newf("unsupported format: %s (supported: json, yaml)", format)
	}
}

// blockStyle drops the flow and quoting styles JSON input leaves on every node.
// Strings that would read back as another type are still quoted by the encoder.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func runModelsPut(cmd *cobra.Command, args []string) error {
	entityType := args[0]
	if err := model.ValidateEntityType(entityType); err != nil {
		return err
	}
	m, err := readModelFile(args[1], cmd.InOrStdin())
	if err != nil {
		return err
	}

	store, err := loadModelStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutModel(cmd.Context(), entityType, m); err != nil {
		return errors.Wrapf(err, "failed to save model %s", entityType)
	}
	pterm.Success.Printfln("Saved model %s", entityType)
	return nil
}

func runModelsGet(cmd *cobra.Command, args []string) error {
	store, err := loadModelStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := store.GetModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	data, err := encodeModel(m, modelsFormat)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), "\n"))
	return nil
}

func runModelsList(cmd *cobra.Command, args []string) error {
	store, err := loadModelStore()
	if err != nil {
		return err
	}
	defer store.Close()

	types, err := store.ListModels(cmd.Context())
	if err != nil {
		return err
	}
	if len(types) == 0 {
		pterm.Info.Println("No models")
		return nil
	}
	for _, t := range types {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}

func runModelsRemove(cmd *cobra.Command, args []string) error {
	store, err := loadModelStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteModel(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Deleted model %s", args[0])
	return nil
}
