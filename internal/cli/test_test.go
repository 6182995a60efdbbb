package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mergeScenario = `name: merge_tags
description: "merge adds the missing tag"
schema: %SCHEMA%
seed:
  - table: tags
    rows: [{slug: go}, {slug: sql}]
  - table: posts
    rows: [{id: 1, title: Hello, draft: true}]
steps:
  - op: merge
    type: posts
    id: "1"
    relation: tags
    refs: [{type: tags, id: sql}]
    expect:
      result: {added: [sql]}
assertions:
  - type: row_count
    table: posts_tags
    count: 1
`

// scenariosDir writes the given scenarios into a temp dir, pointing them
// at the blog schema.
func scenariosDir(t *testing.T, files map[string]string) string {
	t.Helper()
	schemaDir, err := filepath.Abs(blogSchema)
	require.NoError(t, err)

	dir := t.TempDir()
	for name, body := range files {
		body = string(bytes.ReplaceAll([]byte(body), []byte("%SCHEMA%"), []byte(schemaDir)))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func runTestCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(testOptions(format))
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCmd(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCmd(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCmd(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = runTestCmd(t, "json", t.TempDir())
	require.NoError(t, err)
	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"merge_tags.yaml": mergeScenario})
	golden := filepath.Join(dir, "golden", "merge_tags.golden")

	out, err := runTestCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ merge_tags")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NoFileExists(t, golden)

	out, err = runTestCmd(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ merge_tags (golden updated)")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"merge_tags"}
{"id":"1","op":"merge","outcome":"ok","relation":"tags","result":{"added":["sql"],"removed":[],"skipped":[]},"seq":1,"type":"posts"}
`, string(data))

	_, err = runTestCmd(t, "text", dir)
	require.NoError(t, err, "golden matches")

	stale := bytes.ReplaceAll(data, []byte(`"added":["sql"]`), []byte(`"added":["go"]`))
	require.NoError(t, os.WriteFile(golden, stale, 0644))
	out, err = runTestCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ merge_tags")
	assert.Contains(t, out, "--update to regenerate")
	assert.Contains(t, out, `- {"id":"1","op":"merge"`)
	assert.Contains(t, out, `+ {"id":"1","op":"merge"`)
}

func TestTestCommandFailures(t *testing.T) {
	failing := string(bytes.Replace([]byte(mergeScenario), []byte("count: 1"), []byte("count: 5"), 1))
	failing = string(bytes.Replace([]byte(failing), []byte("name: merge_tags"), []byte("name: wrong_count"), 1))
	dir := scenariosDir(t, map[string]string{
		"ok.yaml":     mergeScenario,
		"wrong.yaml":  failing,
		"broken.yaml": "name: broken\n",
	})

	out, err := runTestCmd(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 2, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, sr := range resp.Data.Scenarios {
		byName[sr.Name] = sr
	}
	assert.True(t, byName["merge_tags"].Pass)
	require.Contains(t, byName, "broken.yaml")
	assert.Contains(t, byName["broken.yaml"].Errors[0], "failed to load scenario")
	require.Contains(t, byName, "wrong_count")
	assert.Contains(t, byName["wrong_count"].Errors[0], "5 rows")
}

func TestTestHelpText(t *testing.T) {
	out, err := runTestCmd(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "scenario")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "golden", "stray.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"replace-tags.yaml", "replace-author.yaml", "page-posts.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(""), 0644))
	}

	files, err := findScenarioFiles(tmpDir, "replace-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(tmpDir, "[")
	assert.Error(t, err)
}
