package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/mcules/rfsweep/internal/models"
	"github.com/mcules/rfsweep/internal/xval"
)

const DefaultNTree = 500

type Config struct {
	Root        string
	NTree       int
	Interpreter string
	Script      string
	DBPath      string
	HealthAddr  string
	Sources     models.Sources

	LogMaxSizeMB  int
	LogMaxAgeDays int
}

// FromEnv reads RFSWEEP_* variables; flags override the result afterwards.
func FromEnv() Config {
	return Config{
		Root:        envOr("RFSWEEP_ROOT", "."),
		NTree:       envOrInt("RFSWEEP_NTREE", DefaultNTree),
		Interpreter: envOr("RFSWEEP_PERL", xval.DefaultInterpreter),
		Script:      envOr("RFSWEEP_SCRIPT", xval.DefaultScript),
		DBPath:      os.Getenv("RFSWEEP_DB_PATH"),
		HealthAddr:  os.Getenv("RFSWEEP_HEALTH_ADDR"),
		Sources: models.Sources{
			FeatureBase:    envOr("RFSWEEP_FEATURE_BASE_URL", models.DefaultSources.FeatureBase),
			ImportanceBase: envOr("RFSWEEP_IMPORTANCE_BASE_URL", models.DefaultSources.ImportanceBase),
		},
		LogMaxSizeMB:  envOrInt("RFSWEEP_LOG_MAX_SIZE_MB", 10),
		LogMaxAgeDays: envOrInt("RFSWEEP_LOG_MAX_AGE_DAYS", 7),
	}
}

// Dir returns one of the working directories under Root.
func (c Config) Dir(name string) string {
	return filepath.Join(c.Root, name)
}

func (c Config) PerformanceDir() string { return c.Dir("performance") }
func (c Config) CacheDir() string       { return c.Dir("cache") }
func (c Config) DataDir() string        { return c.Dir("data") }

// WorkDirs lists the directories the driver creates before a sweep.
func (c Config) WorkDirs() []string {
	return []string{c.PerformanceDir(), c.CacheDir(), c.DataDir()}
}

func (c Config) LedgerPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.CacheDir(), "rfsweep.db")
}

func (c Config) LogPath() string {
	return filepath.Join(c.PerformanceDir(), "rfsweep.log")
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envOrInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
