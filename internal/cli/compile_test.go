package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/compiler"
	"github.com/roach88/cortex/internal/ir"
)

func TestCompile_Text(t *testing.T) {
	out, err := execute(t, "compile", chainGraph)
	require.NoError(t, err)

	g, err := compiler.LoadGraphFile(chainGraph)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled graph chain")
	assert.Contains(t, out, "hash: "+ir.MustGraphHash(g))
	assert.Contains(t, out, "lower: 4x4 cells, dim 1, propagate, 40 train iters")
	assert.Contains(t, out, "upper: 4x4 cells, dim 2, consume, 40 train iters")
}

func TestCompile_JSONCarriesCanonicalIR(t *testing.T) {
	out, err := execute(t, "compile", "--format", "json", chainGraph)
	require.NoError(t, err)

	g, err := compiler.LoadGraphFile(chainGraph)
	require.NoError(t, err)
	want, err := ir.MarshalCanonical(g.ToIR())
	require.NoError(t, err)

	resp := decode[CompilationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "chain", resp.Data.Graph)
	assert.Equal(t, ir.IRVersion, resp.Data.IRVersion)
	assert.Equal(t, ir.MustGraphHash(g), resp.Data.Hash)
	assert.JSONEq(t, string(want), string(resp.Data.IR))
}

func TestCompile_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	out, err := execute(t, "compile", "-o", path, chainGraph)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical IR to "+path)

	g, err := compiler.LoadGraphFile(chainGraph)
	require.NoError(t, err)
	want, err := ir.MarshalCanonical(g.ToIR())
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got), "file holds the exact canonical bytes")
}

func TestCompile_PackageDirectoryMatchesFile(t *testing.T) {
	out, err := execute(t, "compile", "--format", "json", splitGraph)
	require.NoError(t, err)
	resp := decode[CompilationResult](t, out)
	assert.Equal(t, "split", resp.Data.Graph)
	assert.NotEmpty(t, resp.Data.Hash)
}

func TestCompile_RefusesMiswiredGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	_, err := execute(t, "compile", "-o", path, miswiredGraph)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoFileExists(t, path)
}

func TestCompile_WriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "out.json")
	_, err := execute(t, "compile", "-o", path, chainGraph)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeWriteFailed)
}

func TestFindCUEFiles(t *testing.T) {
	files, err := FindCUEFiles(splitGraph)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(splitGraph, "inputs.cue"),
		filepath.Join(splitGraph, "wiring.cue"),
	}, files)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"cue", ErrCodeSyntax},
		{"graph", ErrCodeNoGraph},
		{"sections", ErrCodeGraphField},
		{"fan_in.upper", ErrCodeGraphField},
		{"", ErrCodeGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field), tt.field)
	}
}
