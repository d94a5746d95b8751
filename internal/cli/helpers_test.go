package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testModel = `
resource: {
	count: {kind: "int", default: 0}
	level: {kind: "poly", default: 1}
}
`

const passingScenario = `
name: counting
description: "two increments"
model: model.cue
steps:
  - insert: { id: a, activity: increment, at: 1s, args: { resource: count, by: 2 } }
  - insert: { id: b, activity: increment, at: 3s, args: { resource: count, by: 1 } }
  - sample: { resource: count, at: 5s, expect: 3 }
`

const failingScenario = `
name: wrong
description: "expects the wrong value"
model: model.cue
steps:
  - sample: { resource: count, at: 5s, expect: 9 }
`

// scenarioDir writes the test model and the given scenarios into a fresh
// directory.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.cue"), []byte(testModel), 0644))
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
