package xval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mcules/rfsweep/internal/grid"
)

var ErrToolNotFound = errors.New("cross-validation interpreter not found")

const (
	DefaultInterpreter = "perl"
	DefaultScript      = "./rf-xval.pl"
)

// Runner invokes the external cross-validation script once per grid point.
type Runner struct {
	Interpreter string
	Script      string
	Dir         string
	Stdout      io.Writer
	Stderr      io.Writer
	Log         *log.Logger
}

type Result struct {
	Point    grid.Point
	ExitCode int
	Err      error
	Started  time.Time
	Duration time.Duration
}

func (r Result) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// Resolve looks up the interpreter on PATH. A missing script only warns: the script path
// is resolved by the interpreter relative to dir.
func Resolve(interpreter, script, dir string, logger *log.Logger) (*Runner, error) {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if script == "" {
		script = DefaultScript
	}
	if logger == nil {
		logger = log.Default()
	}

	path, err := exec.LookPath(interpreter)
	if err != nil || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, interpreter)
	}

	sp := script
	if !filepath.IsAbs(sp) {
		sp = filepath.Join(dir, sp)
	}
	if _, err := os.Stat(sp); err != nil {
		logger.Printf("xval: script not found path=%s, every invocation will fail", sp)
	}

	return &Runner{
		Interpreter: path,
		Script:      script,
		Dir:         dir,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Log:         logger,
	}, nil
}

// Args is the argument vector passed to the interpreter for p.
func (r *Runner) Args(p grid.Point) []string {
	return []string{
		r.Script,
		string(p.Model),
		strconv.Itoa(p.NTree),
		strconv.Itoa(p.MTry),
		strconv.Itoa(p.TopN),
	}
}

// Invoke blocks until the child exits. A non-zero exit is reported in the result and
// never returned as an error; callers continue with the next point.
func (r *Runner) Invoke(ctx context.Context, p grid.Point) Result {
	res := Result{Point: p, Started: time.Now()}

	cmd := exec.CommandContext(ctx, r.Interpreter, r.Args(p)...)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err := cmd.Run()
	res.Duration = time.Since(res.Started)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}

	if !res.OK() {
		r.logger().Printf("xval: invocation failed model=%s ntree=%d mtry=%d topn=%d exit=%d err=%v",
			p.Model, p.NTree, p.MTry, p.TopN, res.ExitCode, res.Err)
	}
	return res
}

func (r *Runner) logger() *log.Logger {
	if r.Log == nil {
		return log.Default()
	}
	return r.Log
}
