package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOptions_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	l, err := NewWithOptions(Options{File: path})
	require.NoError(t, err)
	l.Info("batch closed")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"batch closed"`)
	assert.Contains(t, string(raw), `"timestamp"`)
}

func TestNamed_NilBase(t *testing.T) {
	assert.NotNil(t, Named(nil, "store"))
}
