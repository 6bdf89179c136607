package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out, &bytes.Buffer{})
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestRunCommandJSON(t *testing.T) {
	t.Setenv("ORDER_PREFIX", "")
	dir := t.TempDir()
	input := filepath.Join(dir, "orders.csv")
	csv := "Name,Line: Properties,Line: Title,Line: Variant Title\n" +
		"#ZZ1,\"[{'name': 'Photo', 'value': 'not-a-url'}]\",Locket,Gold\n" +
		"#ER1,\"[{'name': 'Photo', 'value': 'not-a-url'}]\",Locket,Gold\n"
	require.NoError(t, os.WriteFile(input, []byte(csv), 0o644))

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"run", input, "--output", filepath.Join(dir, "out"), "--prefix", "#ZZ", "--json", "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	var s runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Equal(t, 1, s.Orders)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, map[string]int{"Invalid": 1}, s.Statuses)
	assert.FileExists(t, s.Archive)
	assert.Contains(t, errOut.String(), "[100%] Done")
}

func TestRunCommandRequiresInput(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"run"})
	assert.Error(t, cmd.Execute())
}

func TestRunCommandMissingColumns(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(input, []byte("Name\n#ER1\n"), 0o644))

	var errOut bytes.Buffer
	cmd := newRootCmd(&bytes.Buffer{}, &errOut)
	cmd.SetArgs([]string{"run", input, "-o", filepath.Join(dir, "out"), "--log-level", "error"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(errOut.String(), "Error: missing required columns"), errOut.String())
}

func TestRunCommandRerunsIntoFreshDirs(t *testing.T) {
	t.Setenv("ORDER_PREFIX", "")
	dir := t.TempDir()
	t.Chdir(dir)
	csv := "Name,Line: Properties,Line: Title,Line: Variant Title\n" +
		"#ER1,\"[{'name': 'Photo', 'value': 'not-a-url'}]\",Locket,Gold\n"
	require.NoError(t, os.WriteFile("orders.csv", []byte(csv), 0o644))

	var archives []string
	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		cmd := newRootCmd(&out, &bytes.Buffer{})
		cmd.SetArgs([]string{"run", "orders.csv", "--log-level", "error"})
		require.NoError(t, cmd.Execute())
		archives = append(archives, strings.TrimSpace(out.String()))
	}

	require.NotEqual(t, filepath.Dir(archives[0]), filepath.Dir(archives[1]))
	for _, a := range archives {
		assert.Equal(t, "output", filepath.Dir(filepath.Dir(a)))
		assert.FileExists(t, a)
	}
}

func TestRunCommandRejectsUsedOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "orders.csv")
	csv := "Name,Line: Properties,Line: Title,Line: Variant Title\n" +
		"#ER1,\"[{'name': 'Photo', 'value': 'not-a-url'}]\",Locket,Gold\n"
	require.NoError(t, os.WriteFile(input, []byte(csv), 0o644))
	out := filepath.Join(dir, "out")

	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"run", input, "-o", out, "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	var errOut bytes.Buffer
	cmd = newRootCmd(&bytes.Buffer{}, &errOut)
	cmd.SetArgs([]string{"run", input, "-o", out, "--log-level", "error"})
	require.Error(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "is not empty")
}
