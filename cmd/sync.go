package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/config"
	"github.com/aak-rpa/henstilling-sync/internal/extract"
	"github.com/aak-rpa/henstilling-sync/internal/geo"
	"github.com/aak-rpa/henstilling-sync/internal/identity"
	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/monitoring"
	"github.com/aak-rpa/henstilling-sync/internal/pipeline"
	"github.com/aak-rpa/henstilling-sync/internal/resilience"
	"github.com/aak-rpa/henstilling-sync/pkg/cvr"
	"github.com/aak-rpa/henstilling-sync/pkg/geocode"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync exported portal cases into the record store",
	Long:  "Reads a portal export (csv) or scraped case pages (sections, JSON lines), enriches each case and upserts its billable violation records. Use --input - to read from stdin.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applySyncFlags(cmd, &cfg.Sync)
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		in, err := openInput(cfg.Sync.Input)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		src, err := newSource(in, cfg.Sync)
		if err != nil {
			return err
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(st, newCorrector(cfg), newRegistry(cfg), identity.DefaultCatalog(), pipeline.Config{
			MaxCases: cfg.Sync.MaxCases,
			DryRun:   dryRun,
		})

		start := time.Now()
		res, runErr := p.Run(ctx, src)
		elapsed := time.Since(start)
		if res != nil {
			formatRunSummary(os.Stdout, res, elapsed, dryRun)
		}
		notifyRun(ctx, res, runErr, elapsed)
		if runErr != nil {
			return eris.Wrap(runErr, "sync")
		}
		if res.WriteErrors > 0 {
			zap.L().Warn("sync: finished with write errors", zap.Int("write_errors", res.WriteErrors))
		}
		return nil
	},
}

// notifyRun exports run metrics, then logs and delivers alerts. Delivery
// outlives a cancelled run context.
func notifyRun(ctx context.Context, res *pipeline.RunResult, runErr error, elapsed time.Duration) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	metrics := monitoring.NewRunMetrics(cfg.Monitoring)
	metrics.Observe(res, runErr, elapsed, time.Now())
	if err := metrics.Export(sendCtx); err != nil {
		zap.L().Warn("sync: metrics export failed", zap.Error(err))
	}

	alerter := monitoring.NewAlerter(cfg.Monitoring)
	alerts := alerter.Evaluate(res, runErr)
	for _, a := range alerts {
		zap.L().Warn("sync: alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	alerter.SendAlerts(sendCtx, alerts)
}

func applySyncFlags(cmd *cobra.Command, sc *config.SyncConfig) {
	if cmd.Flags().Changed("input") {
		sc.Input, _ = cmd.Flags().GetString("input")
	}
	if cmd.Flags().Changed("format") {
		sc.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("max-cases") {
		sc.MaxCases, _ = cmd.Flags().GetInt("max-cases")
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open input %s", path)
	}
	return f, nil
}

func newSource(r io.Reader, sc config.SyncConfig) (extract.Source, error) {
	switch sc.Format {
	case "csv":
		return extract.NewCSVSource(r, extract.CSVConfig{
			Charset:    sc.Charset,
			CaseStatus: sc.CaseStatus,
		}), nil
	case "sections":
		return extract.NewSectionSource(r), nil
	default:
		return nil, eris.Errorf("unsupported input format: %s", sc.Format)
	}
}

func newCorrector(c *config.Config) *geo.Corrector {
	opts := []geo.CorrectorOption{
		geo.WithDepot(model.Coordinate{Lat: c.Geocode.DepotLat, Lon: c.Geocode.DepotLon}),
		geo.WithThreshold(c.Geocode.ThresholdM),
	}
	if !c.Geocode.Enabled {
		return geo.NewCorrector(nil, opts...)
	}
	gc := geocode.NewClient(
		geocode.WithBaseURL(c.Geocode.BaseURL),
		geocode.WithTimeout(time.Duration(c.Geocode.TimeoutSecs)*time.Second),
		geocode.WithRateLimit(c.Geocode.RateLimit),
		geocode.WithUserAgent(c.Geocode.UserAgent),
		geocode.WithArea(c.Geocode.City, c.Geocode.Country),
		geocode.WithBreaker(resilience.NewCircuitBreaker(
			resilience.FromBreakerConfig("geocode", c.Breaker.FailureThreshold, c.Breaker.ResetTimeoutSecs),
		)),
	)
	return geo.NewCorrector(gc, opts...)
}

// newRegistry returns nil when registry lookups are disabled.
func newRegistry(c *config.Config) pipeline.NameLookup {
	if !c.Registry.Enabled {
		return nil
	}
	return cvr.NewClient(
		cvr.WithBaseURL(c.Registry.BaseURL),
		cvr.WithTimeout(time.Duration(c.Registry.TimeoutSecs)*time.Second),
		cvr.WithUserAgent(c.Registry.UserAgent),
		cvr.WithCountry(c.Registry.Country),
		cvr.WithRateLimit(c.Registry.RateLimit),
		cvr.WithRetry(c.Registry.MaxAttempts, 500*time.Millisecond),
		cvr.WithBreaker(resilience.NewCircuitBreaker(
			resilience.FromBreakerConfig("cvr", c.Breaker.FailureThreshold, c.Breaker.ResetTimeoutSecs),
		)),
	)
}

func formatRunSummary(out io.Writer, res *pipeline.RunResult, elapsed time.Duration, dryRun bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	_, _ = fmt.Fprintf(w, "Run\t%s (%s)\n", res.RunID, mode)
	_, _ = fmt.Fprintf(w, "Cases read\t%d\n", res.Cases)
	_, _ = fmt.Fprintf(w, "Cases processed\t%d\n", res.Processed)
	_, _ = fmt.Fprintf(w, "Cases skipped\t%d\n", res.SkippedTotal())

	reasons := make([]string, 0, len(res.Skipped))
	for r := range res.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", r, res.Skipped[pipeline.SkipReason(r)])
	}

	_, _ = fmt.Fprintf(w, "Records planned\t%d\n", res.Planned)
	_, _ = fmt.Fprintf(w, "Records written\t%d\n", res.Written)
	_, _ = fmt.Fprintf(w, "Records locked\t%d\n", res.Locked)
	_, _ = fmt.Fprintf(w, "Write errors\t%d\n", res.WriteErrors)
	_, _ = fmt.Fprintf(w, "Coordinates corrected\t%d\n", res.Corrected)
	_, _ = fmt.Fprintf(w, "Coordinates geocoded\t%d\n", res.Geocoded)
	if res.Capped {
		_, _ = fmt.Fprintln(w, "Case cap reached\tyes")
	}
	_, _ = fmt.Fprintf(w, "Elapsed\t%s\n", elapsed.Round(time.Millisecond))
	_ = w.Flush()
}

func init() {
	syncCmd.Flags().String("input", "", "portal export or scraped pages file (- for stdin)")
	syncCmd.Flags().String("format", "csv", "input format (csv, sections)")
	syncCmd.Flags().Int("max-cases", 0, "stop after this many cases, overriding sync.max_cases (0 = no cap)")
	syncCmd.Flags().Bool("dry-run", false, "plan writes without upserting")

	rootCmd.AddCommand(syncCmd)
}
