package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/compiler"
)

func TestValidate_ValidGraph(t *testing.T) {
	out, err := execute(t, "validate", chainGraph)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Graph chain valid (1 input(s), 2 section(s))")
}

func TestValidate_ValidGraphJSON(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", chainGraph)
	require.NoError(t, err)

	resp := decode[ValidationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "chain", resp.Data.Graph)
	assert.Equal(t, 2, resp.Data.Sections)
}

func TestValidate_PackageDirectory(t *testing.T) {
	out, err := execute(t, "validate", "-v", splitGraph)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Graph split valid (1 input(s), 1 section(s))")
}

func TestValidate_Miswired(t *testing.T) {
	out, err := execute(t, "validate", miswiredGraph)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrDimMismatch)
}

func TestValidate_MiswiredJSON(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", miswiredGraph)
	require.Error(t, err)

	resp := decode[ValidationResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, compiler.ErrDimMismatch)
}

func TestValidate_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	syntax := filepath.Join(dir, "syntax.cue")
	require.NoError(t, os.WriteFile(syntax, []byte("graph: {\n"), 0o644))
	nograph := filepath.Join(dir, "nograph.cue")
	require.NoError(t, os.WriteFile(nograph, []byte("other: 1\n"), 0o644))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))

	tests := []struct {
		name     string
		path     string
		wantCode string
	}{
		{"missing path", filepath.Join(dir, "nope.cue"), ErrCodeNotFound},
		{"empty directory", empty, ErrCodeNoFiles},
		{"syntax error", syntax, ""},
		{"no graph field", nograph, ErrCodeNoGraph},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "validate", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [")
			if tt.wantCode != "" {
				assert.Contains(t, err.Error(), tt.wantCode)
				assert.Contains(t, out, "Error ["+tt.wantCode+"]")
			}
		})
	}
}
