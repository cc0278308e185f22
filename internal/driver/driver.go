package driver

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcules/rfsweep/internal/grid"
	"github.com/mcules/rfsweep/internal/ledger"
	"github.com/mcules/rfsweep/internal/metrics"
	"github.com/mcules/rfsweep/internal/models"
	"github.com/mcules/rfsweep/internal/xval"
)

// Invoker runs the external tool for one grid point.
type Invoker interface {
	Invoke(ctx context.Context, p grid.Point) xval.Result
}

// Ledger is the subset of ledger.Store the driver writes to.
type Ledger interface {
	BeginSweep(ctx context.Context, sw ledger.Sweep) error
	FinishSweep(ctx context.Context, id string, ok, failed int, at time.Time) error
	RecordInvocation(ctx context.Context, inv ledger.Invocation) error
}

// StateReporter is told when a sweep starts and stops (see internal/health).
type StateReporter interface {
	Running(on bool)
}

type Driver struct {
	Dirs    []string
	Models  []models.Model
	NTree   int
	Bounds  grid.Bounds
	Seed    uint64
	Fetch   func(ctx context.Context, ms []models.Model) error
	Invoker Invoker
	Ledger  Ledger
	Health  StateReporter
	Timings *metrics.InvocationTracker
	Log     *log.Logger
}

type Summary struct {
	SweepID string
	Points  int
	OK      int
	Failed  int
	Elapsed time.Duration
}

// Run prepares the working directories, fetches data when Fetch is set, then invokes the
// external tool once per shuffled grid point. Tool failures never stop the sweep.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{SweepID: uuid.NewString()}

	for _, dir := range d.Dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sum, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if d.Invoker == nil {
		return sum, xval.ErrToolNotFound
	}

	ms := append([]models.Model(nil), d.Models...)
	if len(ms) == 0 {
		return sum, models.ErrNoModels
	}

	if d.Fetch != nil {
		if err := d.Fetch(ctx, ms); err != nil {
			return sum, fmt.Errorf("fetch: %w", err)
		}
	}

	bounds := d.Bounds
	if bounds == (grid.Bounds{}) {
		bounds = grid.DefaultBounds
	}
	rng := grid.NewRand(d.Seed)

	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = string(m)
	}
	if d.Ledger != nil {
		err := d.Ledger.BeginSweep(ctx, ledger.Sweep{
			ID:        sum.SweepID,
			NTree:     d.NTree,
			Seed:      d.Seed,
			Models:    strings.Join(names, ","),
			StartedAt: start,
			Points:    grid.Count(len(ms), bounds),
		})
		if err != nil {
			d.logger().Printf("driver: ledger begin failed sweep=%s err=%v", sum.SweepID, err)
		}
	}

	d.logger().Printf("driver: sweep start id=%s models=%d ntree=%d points=%d seed=%d",
		sum.SweepID, len(ms), d.NTree, grid.Count(len(ms), bounds), d.Seed)

	if d.Health != nil {
		d.Health.Running(true)
		defer d.Health.Running(false)
	}

	err := grid.Walk(ms, d.NTree, bounds, rng, func(p grid.Point) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := d.Invoker.Invoke(ctx, p)
		sum.Points++
		if res.OK() {
			sum.OK++
		} else {
			sum.Failed++
		}
		d.observe(ctx, sum.SweepID, res)
		return nil
	})
	sum.Elapsed = time.Since(start)

	if d.Ledger != nil {
		// The sweep context may already be canceled; the final row still gets written.
		if lerr := d.Ledger.FinishSweep(context.WithoutCancel(ctx), sum.SweepID, sum.OK, sum.Failed, time.Now()); lerr != nil {
			d.logger().Printf("driver: ledger finish failed sweep=%s err=%v", sum.SweepID, lerr)
		}
	}
	d.logTimings()
	d.logger().Printf("driver: sweep done id=%s points=%d ok=%d failed=%d elapsed=%s",
		sum.SweepID, sum.Points, sum.OK, sum.Failed, sum.Elapsed.Round(time.Millisecond))

	if err != nil {
		return sum, fmt.Errorf("sweep interrupted: %w", err)
	}
	return sum, nil
}

func (d *Driver) observe(ctx context.Context, sweepID string, res xval.Result) {
	model := string(res.Point.Model)
	if d.Timings != nil {
		if res.OK() {
			d.Timings.ObserveOK(model, res.Duration)
		} else {
			d.Timings.ObserveError(model, res.Duration)
		}
	}
	if d.Ledger == nil {
		return
	}

	var msg string
	if res.Err != nil {
		msg = res.Err.Error()
	}
	err := d.Ledger.RecordInvocation(context.WithoutCancel(ctx), ledger.Invocation{
		SweepID:   sweepID,
		Model:     model,
		NTree:     res.Point.NTree,
		MTry:      res.Point.MTry,
		TopN:      res.Point.TopN,
		ExitCode:  res.ExitCode,
		Error:     msg,
		Duration:  res.Duration,
		StartedAt: res.Started,
	})
	if err != nil {
		d.logger().Printf("driver: ledger record failed model=%s err=%v", model, err)
	}
}

func (d *Driver) logTimings() {
	if d.Timings == nil {
		return
	}
	for _, m := range d.Timings.Models() {
		t, _ := d.Timings.Get(m)
		d.logger().Printf("driver: model=%s ok=%d failed=%d ewma_ms=%.0f last=%s",
			m, t.OK, t.Error, t.EWMAms, t.LastDuration.Round(time.Millisecond))
	}
}

func (d *Driver) logger() *log.Logger {
	if d.Log == nil {
		return log.Default()
	}
	return d.Log
}
