package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mcules/rfsweep/internal/config"
	"github.com/mcules/rfsweep/internal/driver"
	"github.com/mcules/rfsweep/internal/fetch"
	"github.com/mcules/rfsweep/internal/grid"
	"github.com/mcules/rfsweep/internal/health"
	"github.com/mcules/rfsweep/internal/ledger"
	"github.com/mcules/rfsweep/internal/logx"
	"github.com/mcules/rfsweep/internal/metrics"
	"github.com/mcules/rfsweep/internal/models"
	"github.com/mcules/rfsweep/internal/xval"
)

type options struct {
	cfg       config.Config
	patterns  []string
	seed      uint64
	skipFetch bool
}

func newRootCmd() *cobra.Command {
	o := &options{cfg: config.FromEnv()}

	root := &cobra.Command{
		Use:           "rfsweep",
		Short:         "Fetch feature data and sweep random-forest hyperparameters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.cfg.Root, "root", o.cfg.Root, "working root holding data/, cache/ and performance/")
	pf.StringSliceVar(&o.patterns, "models", nil, "wildcard patterns selecting models (default: all)")
	pf.StringVar(&o.cfg.DBPath, "db", o.cfg.DBPath, "ledger database path (default: <root>/cache/rfsweep.db)")

	root.AddCommand(newFetchCmd(o), newRunCmd(o), newGridCmd(o), newStatusCmd(o))
	return root
}

func newFetchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download missing feature and importance files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := models.Select(o.patterns)
			if err != nil {
				return err
			}
			logger, closeLog, err := openLog(o.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog.Close()

			store, err := openLedger(o.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := newFetcher(o.cfg, logger, store).FetchAll(cmd.Context(), ms)
			if err != nil {
				return err
			}
			logger.Printf("fetch: done created=%d skipped=%d", len(res.Created), len(res.Skipped))
			return nil
		},
	}
}

func newRunCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [ntree]",
		Short: "Invoke the cross-validation tool for every shuffled (model, topn, mtry)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid ntree %q", args[0])
				}
				o.cfg.NTree = n
			}
			return runSweep(cmd.Context(), o, cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.cfg.NTree, "ntree", o.cfg.NTree, "number of trees per forest")
	f.Uint64Var(&o.seed, "seed", 0, "shuffle seed (0 picks a random one)")
	f.BoolVar(&o.skipFetch, "skip-fetch", false, "do not download missing data before the sweep")
	f.StringVar(&o.cfg.HealthAddr, "health-addr", o.cfg.HealthAddr, "serve grpc.health.v1 on this address while sweeping")
	f.StringVar(&o.cfg.Interpreter, "perl", o.cfg.Interpreter, "interpreter used to run the script")
	f.StringVar(&o.cfg.Script, "script", o.cfg.Script, "cross-validation script, relative to --root")
	return cmd
}

func runSweep(ctx context.Context, o *options, console io.Writer) error {
	ms, err := models.Select(o.patterns)
	if err != nil {
		return err
	}
	logger, closeLog, err := openLog(o.cfg, console)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	runner, err := xval.Resolve(o.cfg.Interpreter, o.cfg.Script, o.cfg.Root, logger)
	if err != nil {
		return err
	}

	store, err := openLedger(o.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	seed := o.seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	d := &driver.Driver{
		Dirs:    o.cfg.WorkDirs(),
		Models:  ms,
		NTree:   o.cfg.NTree,
		Bounds:  grid.DefaultBounds,
		Seed:    seed,
		Invoker: runner,
		Ledger:  store,
		Timings: metrics.NewInvocationTracker(0.2),
		Log:     logger,
	}
	if !o.skipFetch {
		f := newFetcher(o.cfg, logger, store)
		d.Fetch = func(ctx context.Context, ms []models.Model) error {
			_, err := f.FetchAll(ctx, ms)
			return err
		}
	}

	if o.cfg.HealthAddr != "" {
		hs, err := health.Listen(o.cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("health listen: %w", err)
		}
		defer hs.Close()
		d.Health = hs
	}

	_, err = d.Run(ctx)
	return err
}

func newGridCmd(o *options) *cobra.Command {
	var seed uint64
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the shuffled grid a run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := models.Select(o.patterns)
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = rand.Uint64()
			}
			rng := grid.NewRand(seed)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# seed=%d points=%d\n", seed, grid.Count(len(ms), grid.DefaultBounds))
			for _, p := range grid.Points(ms, o.cfg.NTree, grid.DefaultBounds, rng) {
				fmt.Fprintf(out, "%s\t%d\t%d\t%d\n", p.Model, p.NTree, p.MTry, p.TopN)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&o.cfg.NTree, "ntree", o.cfg.NTree, "number of trees per forest")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "shuffle seed (0 picks a random one)")
	return cmd
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recorded downloads, sweeps and per-model invocation counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedger(o.cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return printStatus(cmd.Context(), store, cmd.OutOrStdout())
		},
	}
}

func printStatus(ctx context.Context, store *ledger.Store, out io.Writer) error {
	downloads, err := store.ListDownloads(ctx)
	if err != nil {
		return err
	}
	sweeps, err := store.ListSweeps(ctx, 10)
	if err != nil {
		return err
	}
	stats, err := store.InvocationStats(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tKIND\tSIZE\tFETCHED\tBLAKE2B")
	for _, d := range downloads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Model, d.Kind, humanize.Bytes(uint64(d.Bytes)), humanize.Time(d.FetchedAt), short(d.Digest))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "SWEEP\tNTREE\tSTARTED\tPOINTS\tOK\tFAILED\tMODELS")
	for _, sw := range sweeps {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%d\t%s\n", sw.ID, sw.NTree, humanize.Time(sw.StartedAt), sw.Points, sw.OK, sw.Failed, sw.Models)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "MODEL\tINVOCATIONS\tFAILED\tAVG")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", st.Model, st.Invocations, st.Failed, st.AvgDuration)
	}
	return tw.Flush()
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func openLog(cfg config.Config, console io.Writer) (*log.Logger, io.Closer, error) {
	return logx.New(logx.Options{
		File:      cfg.LogPath(),
		MaxSizeMB: cfg.LogMaxSizeMB,
		MaxAgeDay: cfg.LogMaxAgeDays,
		Console:   console,
	})
}

func openLedger(cfg config.Config) (*ledger.Store, error) {
	path := cfg.LedgerPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	store, err := ledger.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return store, nil
}

func newFetcher(cfg config.Config, logger *log.Logger, store *ledger.Store) *fetch.Fetcher {
	f := fetch.New(cfg.Root, cfg.Sources)
	f.Log = logger
	f.Ledger = store
	return f
}
