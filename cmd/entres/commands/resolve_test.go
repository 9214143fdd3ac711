package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/errors"
	qtest "github.com/teranos/entres/internal/testing"
	"github.com/teranos/entres/resolution/job"
	"github.com/teranos/entres/resolution/model"
	"github.com/teranos/entres/resolution/storage"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func defaultConfig(t *testing.T) *am.Config {
	t.Helper()
	cfg, err := am.DefaultConfig()
	require.NoError(t, err)
	return cfg
}

func resultIDs(t *testing.T, res *job.Result) []string {
	t.Helper()
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids
}

func TestResolve_DocsFileAndModelFile(t *testing.T) {
	dir := t.TempDir()
	req := resolveRequest{
		ModelPath: writeFile(t, dir, "person.yaml", qtest.PersonModelYAML),
		InputPath: writeFile(t, dir, "neo.json", `{"attributes": {"email": ["neo@zion.net"]}}`),
		DocsPath:  writeFile(t, dir, "people.ndjson", qtest.PersonDocuments),
		Params:    []string{"_explanation", "max_hops=5"},
	}

	res, err := resolve(context.Background(), defaultConfig(t), req, strings.NewReader(""))
	require.NoError(t, err)
	require.False(t, res.Failed, "%v", res.Err)

	assert.Equal(t, []string{"neo", "thomas", "acct-neo"}, resultIDs(t, res))
	assert.Equal(t, job.TerminationEmptyFrontier, res.Termination)
	for _, h := range res.Hits {
		assert.NotNil(t, h.Explanation, h.ID)
	}

	var buf bytes.Buffer
	require.NoError(t, renderJSON(&buf, res))
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "empty frontier", doc["termination"])
	assert.Contains(t, buf.String(), "\n  \"took\"", "CLI output is pretty by default")
}

func TestResolve_EmbeddedModelFromStdin(t *testing.T) {
	dir := t.TempDir()
	req := resolveRequest{
		InputPath: "-",
		DocsPath:  writeFile(t, dir, "people.ndjson", qtest.PersonDocuments),
		Params:    []string{"max_hops=1"},
	}
	stdin := strings.NewReader(`{"model": ` + qtest.PersonModel + `, "attributes": {"phone": "555-0102"}}`)

	res, err := resolve(context.Background(), defaultConfig(t), req, stdin)
	require.NoError(t, err)
	assert.Equal(t, []string{"trinity"}, resultIDs(t, res))
	assert.Equal(t, job.TerminationMaxHops, res.Termination)
}

func TestResolve_Database(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "zion.db")

	database, err := openDatabase(dbPath)
	require.NoError(t, err)
	m, err := model.Parse([]byte(qtest.PersonModel))
	require.NoError(t, err)
	require.NoError(t, storage.NewSQLiteModelStore(database, nil).PutModel(ctx, "person", m))
	_, err = storage.LoadNDJSON(ctx, strings.NewReader(qtest.PersonDocuments), storage.NewSQLiteDocumentStore(database, nil), 2)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	req := resolveRequest{
		EntityType: "person",
		InputPath:  writeFile(t, dir, "neo.json", `{"attributes": {"email": "neo@zion.net"}}`),
		DBPath:     dbPath,
	}
	res, err := resolve(ctx, defaultConfig(t), req, strings.NewReader(""))
	require.NoError(t, err)
	require.False(t, res.Failed, "%v", res.Err)
	assert.Equal(t, []string{"neo", "thomas", "acct-neo"}, resultIDs(t, res))

	req.EntityType = "agent"
	_, err = resolve(ctx, defaultConfig(t), req, strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err), "%v", err)
}

func TestResolve_DirectoryModels(t *testing.T) {
	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "models")
	require.NoError(t, os.Mkdir(modelsDir, 0755))
	writeFile(t, modelsDir, "person.yaml", qtest.PersonModelYAML)

	cfg := defaultConfig(t)
	cfg.Models.Source = am.ModelSourceDirectory
	cfg.Models.Directory = modelsDir

	req := resolveRequest{
		EntityType: "person",
		InputPath:  "-",
		DocsPath:   writeFile(t, dir, "people.ndjson", qtest.PersonDocuments),
	}
	res, err := resolve(context.Background(), cfg, req, strings.NewReader(`{"attributes": {"email": "smith@matrix.gov"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"smith"}, resultIDs(t, res))
}

func TestResolve_SetupErrors(t *testing.T) {
	dir := t.TempDir()
	docs := writeFile(t, dir, "people.ndjson", qtest.PersonDocuments)
	modelFile := writeFile(t, dir, "person.json", qtest.PersonModel)

	tests := []struct {
		name    string
		req     resolveRequest
		stdin   string
		wantErr string
	}{
		{
			name:    "two stdin readers",
			req:     resolveRequest{ModelPath: "-", InputPath: "-", DocsPath: docs},
			wantErr: "can read stdin",
		},
		{
			name:    "bad param",
			req:     resolveRequest{ModelPath: modelFile, InputPath: "-", DocsPath: docs, Params: []string{"=1"}},
			wantErr: "invalid param",
		},
		{
			name:    "unknown search param",
			req:     resolveRequest{ModelPath: modelFile, InputPath: "-", DocsPath: docs, Params: []string{"search.spoon=1"}},
			wantErr: "spoon",
		},
		{
			name:    "no model anywhere",
			req:     resolveRequest{InputPath: "-", DocsPath: docs},
			stdin:   `{"attributes": {"email": "neo@zion.net"}}`,
			wantErr: "model",
		},
		{
			name:    "missing docs file",
			req:     resolveRequest{ModelPath: modelFile, InputPath: "-", DocsPath: filepath.Join(dir, "nebuchadnezzar.ndjson")},
			stdin:   `{"attributes": {"email": "neo@zion.net"}}`,
			wantErr: "nebuchadnezzar.ndjson",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolve(context.Background(), defaultConfig(t), tt.req, strings.NewReader(tt.stdin))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderTable(t *testing.T) {
	dir := t.TempDir()
	req := resolveRequest{
		ModelPath: writeFile(t, dir, "person.json", qtest.PersonModel),
		InputPath: "-",
		DocsPath:  writeFile(t, dir, "people.ndjson", qtest.PersonDocuments),
	}
	res, err := resolve(context.Background(), defaultConfig(t), req, strings.NewReader(`{"attributes": {"email": "trinity@zion.net"}}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "trinity")
	assert.Contains(t, out, "email=trinity@zion.net")
	assert.Contains(t, out, "1 hits in 2 hops (empty frontier)")
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"max_hops=3", "_explanation", "search.preference=_local", "max_hops=4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, params["max_hops"])
	assert.Equal(t, "true", params.Get("_explanation"))
	assert.Equal(t, "_local", params.Get("search.preference"))

	_, err = parseParams([]string{"=oracle"})
	assert.Error(t, err)
}
