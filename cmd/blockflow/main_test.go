package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockflow/internal/store"
	"github.com/rendis/blockflow/pkg/schema"
)

const sampleJSON = `{"version":2,"parameters":[],"blocks":[
	{"label":"open","block_type":"goto_url","url":"https://example.com","next_block_label":"pause"},
	{"label":"pause","block_type":"wait","wait_sec":2,"next_block_label":null}]}`

const legacyJSON = `{"version":1,"parameters":[],"blocks":[
	{"label":"a","block_type":"wait","wait_sec":1},
	{"label":"b","block_type":"wait","wait_sec":1}]}`

// testEnv points HOME and the database at a temp dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := isolateHome(t)
	t.Setenv("BLOCKFLOW_DB_PATH", filepath.Join(dir, "blockflow.db"))
	t.Setenv("BLOCKFLOW_LOG_LEVEL", "error")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	testEnv(t)
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestUpgradeCmd(t *testing.T) {
	dir := testEnv(t)
	path := writeFile(t, dir, "legacy.json", legacyJSON)

	out, err := runCLI(t, "upgrade", path)
	require.NoError(t, err)
	def, err := schema.ParseJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, schema.CurrentVersion, def.Version)
	assert.Equal(t, "b", schema.Deref(def.Blocks[0].Base().NextBlockLabel))

	out, err = runCLI(t, "upgrade", path, "--format", "yaml")
	require.NoError(t, err)
	def, err = schema.ParseYAML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, def.Labels())

	_, err = runCLI(t, "upgrade", path, "--format", "toml")
	assert.Error(t, err)
}

func TestValidateCmd(t *testing.T) {
	dir := testEnv(t)

	out, err := runCLI(t, "validate", writeFile(t, dir, "ok.json", sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)

	bad := writeFile(t, dir, "bad.json", `{"version":2,"parameters":[],"blocks":[
		{"label":"a","block_type":"wait","wait_sec":1,"next_block_label":null},
		{"label":"a","block_type":"wait","wait_sec":1,"next_block_label":null}]}`)
	out, err = runCLI(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "error")

	out, err = runCLI(t, "validate", bad, "--json")
	require.Error(t, err)
	var result schema.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid())
}

func TestConvertCmd_RoundTrip(t *testing.T) {
	dir := testEnv(t)
	defPath := writeFile(t, dir, "def.json", sampleJSON)
	graphPath := filepath.Join(dir, "graph.json")

	_, err := runCLI(t, "convert", defPath, "-o", graphPath)
	require.NoError(t, err)
	data, err := os.ReadFile(graphPath)
	require.NoError(t, err)
	doc, ok, err := parseGraphDocument(data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"open", "pause"}, doc.Graph.Labels())

	out, err := runCLI(t, "convert", graphPath)
	require.NoError(t, err)
	def, err := schema.ParseJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "pause"}, def.Labels())
	assert.Equal(t, "pause", schema.Deref(def.Blocks[0].Base().NextBlockLabel))
}

func TestParseGraphDocument(t *testing.T) {
	_, ok, err := parseGraphDocument([]byte(sampleJSON))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = parseGraphDocument([]byte("version: 2\nblocks: []\n"))
	require.NoError(t, err)
	assert.False(t, ok)

	doc, ok, err := parseGraphDocument([]byte(`{"nodes":[],"edges":[]}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, doc.Graph.Nodes)
}

func TestDiagramCmd(t *testing.T) {
	dir := testEnv(t)
	path := writeFile(t, dir, "def.json", sampleJSON)

	out, err := runCLI(t, "diagram", path, "--title", "Sample")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD"))
	assert.Contains(t, out, "Sample")

	out, err = runCLI(t, "diagram", path, "--format", "ascii")
	require.NoError(t, err)
	assert.Contains(t, out, "pause")

	_, err = runCLI(t, "diagram")
	assert.Error(t, err)

	_, err = runCLI(t, "diagram", path, "--format", "image")
	assert.Error(t, err)

	png := filepath.Join(dir, "out.png")
	_, err = runCLI(t, "diagram", path, "--format", "png", "-o", png)
	require.NoError(t, err)
	data, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, len(data) > 8 && string(data[1:4]) == "PNG")
}

func TestImportExportList(t *testing.T) {
	dir := testEnv(t)
	path := writeFile(t, dir, "legacy.json", legacyJSON)

	out, err := runCLI(t, "import", path, "--title", "Legacy flow")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = runCLI(t, "list", "--title", "legacy")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Legacy flow")

	out, err = runCLI(t, "export", id)
	require.NoError(t, err)
	def, err := schema.ParseJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, schema.CurrentVersion, def.Version)
	assert.Equal(t, []string{"a", "b"}, def.Labels())

	out, err = runCLI(t, "diagram", "--workflow", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Legacy flow")

	_, err = runCLI(t, "export", "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestImportCmd_DefaultTitle(t *testing.T) {
	dir := testEnv(t)
	path := writeFile(t, dir, "checkout-flow.json", sampleJSON)

	_, err := runCLI(t, "import", path)
	require.NoError(t, err)

	out, err := runCLI(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "checkout-flow")
}

func TestBuildHandler(t *testing.T) {
	testEnv(t)
	a := &app{logOut: io.Discard}
	require.NoError(t, a.init(newRootCmd()))

	h, err := a.buildHandler(store.NewMemoryStore())
	require.NoError(t, err)
	live := newLiveHandler(h)

	rec := httptest.NewRecorder()
	live.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	live.Swap(http.NotFoundHandler())
	rec = httptest.NewRecorder()
	live.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
