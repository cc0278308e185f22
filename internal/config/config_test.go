package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcules/rfsweep/internal/models"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"RFSWEEP_ROOT", "RFSWEEP_NTREE", "RFSWEEP_PERL", "RFSWEEP_SCRIPT", "RFSWEEP_DB_PATH",
		"RFSWEEP_HEALTH_ADDR", "RFSWEEP_FEATURE_BASE_URL", "RFSWEEP_IMPORTANCE_BASE_URL"} {
		t.Setenv(k, "")
	}

	c := FromEnv()
	require.Equal(t, ".", c.Root)
	require.Equal(t, 500, c.NTree)
	require.Equal(t, "perl", c.Interpreter)
	require.Equal(t, "./rf-xval.pl", c.Script)
	require.Equal(t, models.DefaultSources, c.Sources)
	require.Equal(t, filepath.Join("cache", "rfsweep.db"), c.LedgerPath())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RFSWEEP_ROOT", "/work")
	t.Setenv("RFSWEEP_NTREE", "2000")
	t.Setenv("RFSWEEP_DB_PATH", "/tmp/x.db")

	c := FromEnv()
	require.Equal(t, 2000, c.NTree)
	require.Equal(t, "/tmp/x.db", c.LedgerPath())
	require.Equal(t, []string{"/work/performance", "/work/cache", "/work/data"}, c.WorkDirs())
	require.Equal(t, "/work/performance/rfsweep.log", c.LogPath())
}

func TestFromEnvBadInt(t *testing.T) {
	t.Setenv("RFSWEEP_NTREE", "lots")
	require.Equal(t, DefaultNTree, FromEnv().NTree)
}
