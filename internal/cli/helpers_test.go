package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	chainGraph    = filepath.Join("testdata", "graphs", "chain.cue")
	splitGraph    = filepath.Join("testdata", "graphs", "split")
	miswiredGraph = filepath.Join("testdata", "graphs", "miswired.cue")
	chainStream   = filepath.Join("testdata", "stream.yaml")
)

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type response[T any] struct {
	Status    string    `json:"status"`
	Data      T         `json:"data"`
	Error     *CLIError `json:"error"`
	SessionID string    `json:"session_id"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// recordRun runs the chain graph into a fresh database and returns the
// database path and session id.
func recordRun(t *testing.T, extra ...string) (string, string) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "cortex.db")
	args := append([]string{"run", "--format", "json", "--db", db, "--input-file", chainStream, "--seed", "7"}, extra...)
	out, err := execute(t, append(args, chainGraph)...)
	require.NoError(t, err, "output: %s", out)
	resp := decode[RunResult](t, out)
	require.NotEmpty(t, resp.SessionID)
	return db, resp.SessionID
}
