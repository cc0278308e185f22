package xval

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcules/rfsweep/internal/grid"
)

// stub stands in for rf-xval.pl: it appends its arguments to calls.txt and exits 3
// for the model named FAIL.
const stub = `echo "$@" >> calls.txt
if [ "$1" = "FAIL" ]; then exit 3; fi
`

func newStubRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rf-xval.pl"), []byte(stub), 0o644))

	r, err := Resolve("sh", DefaultScript, dir, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	r.Stdout, r.Stderr = io.Discard, io.Discard
	return r, dir
}

func TestResolveMissingInterpreter(t *testing.T) {
	_, err := Resolve("definitely-not-a-real-perl-binary", DefaultScript, t.TempDir(), log.New(io.Discard, "", 0))
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestResolveDefaults(t *testing.T) {
	r, err := Resolve("sh", "", t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Equal(t, DefaultScript, r.Script)
	require.True(t, filepath.IsAbs(r.Interpreter))
}

func TestArgsOrder(t *testing.T) {
	r := &Runner{Script: "./rf-xval.pl"}
	got := r.Args(grid.Point{Model: "IG_MHC.3.CYS.SG", NTree: 500, MTry: 3, TopN: 7})
	require.Equal(t, []string{"./rf-xval.pl", "IG_MHC.3.CYS.SG", "500", "3", "7"}, got)
}

func TestInvoke(t *testing.T) {
	r, dir := newStubRunner(t)
	ctx := context.Background()

	ok := r.Invoke(ctx, grid.Point{Model: "IG_MHC.3.CYS.SG", NTree: 500, MTry: 2, TopN: 4})
	require.True(t, ok.OK())
	require.Equal(t, 0, ok.ExitCode)

	bad := r.Invoke(ctx, grid.Point{Model: "FAIL", NTree: 500, MTry: 2, TopN: 2})
	require.False(t, bad.OK())
	require.Equal(t, 3, bad.ExitCode)
	require.NoError(t, bad.Err)

	b, err := os.ReadFile(filepath.Join(dir, "calls.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Equal(t, []string{"IG_MHC.3.CYS.SG 500 2 4", "FAIL 500 2 2"}, lines)
}

func TestInvokeCanceled(t *testing.T) {
	r, _ := newStubRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Invoke(ctx, grid.Point{Model: "X", NTree: 1, MTry: 2, TopN: 2})
	require.False(t, res.OK())
	require.Error(t, res.Err)
	require.Equal(t, -1, res.ExitCode)
}
