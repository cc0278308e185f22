package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "performance", "rfsweep.log")

	logger, closer, err := New(Options{File: file, MaxSizeMB: 1, MaxAgeDay: 1, Console: &console})
	require.NoError(t, err)

	logger.Printf("created file %s", "x")
	require.NoError(t, closer.Close())

	require.Contains(t, console.String(), "created file x")
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(b), "created file x")
}

func TestNewConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(Options{Console: &console})
	require.NoError(t, err)
	logger.Print("hello")
	require.NoError(t, closer.Close())
	require.Contains(t, console.String(), "hello")
}
