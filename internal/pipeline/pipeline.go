// Package pipeline runs the sync: it gates each extracted case, enriches it
// with an owner name and a corrected coordinate, and upserts the reconciled
// records one case at a time.
package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/extract"
	"github.com/aak-rpa/henstilling-sync/internal/geo"
	"github.com/aak-rpa/henstilling-sync/internal/identity"
	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/reconcile"
	"github.com/aak-rpa/henstilling-sync/internal/store"
)

// NameLookup resolves a company identifier to its registered name.
// cvr.Client satisfies it.
type NameLookup interface {
	LookupName(ctx context.Context, ownerID string) (string, error)
}

// CoordCorrector decides which coordinate to store for an address.
// *geo.Corrector satisfies it.
type CoordCorrector interface {
	Correct(ctx context.Context, address string, coord *model.Coordinate) geo.Correction
}

// Config controls a pipeline run.
type Config struct {
	MaxCases int  // stop after this many cases; 0 means no cap
	DryRun   bool // plan writes but do not upsert
}

// Pipeline orchestrates gating, enrichment, reconciliation and persistence.
type Pipeline struct {
	store      store.Store
	corrector  CoordCorrector
	names      NameLookup
	catalog    *identity.Catalog
	reconciler *reconcile.Reconciler
	cfg        Config

	runID string
	cache *NameCache
}

// New creates a Pipeline. names may be nil, in which case owners without a
// known name get the fallback label.
func New(st store.Store, corrector CoordCorrector, names NameLookup, catalog *identity.Catalog, cfg Config) *Pipeline {
	return &Pipeline{
		store:      st,
		corrector:  corrector,
		names:      names,
		catalog:    catalog,
		reconciler: reconcile.New(catalog),
		cfg:        cfg,
		runID:      uuid.NewString(),
		cache:      NewNameCache(),
	}
}

// RunResult tallies one run.
type RunResult struct {
	RunID       string             `json:"run_id"`
	Cases       int                `json:"cases"`
	Processed   int                `json:"processed"`
	Skipped     map[SkipReason]int `json:"skipped"`
	Planned     int                `json:"planned"`
	Written     int                `json:"written"`
	Locked      int                `json:"locked"`
	WriteErrors int                `json:"write_errors"`
	Corrected   int                `json:"corrected"`
	Geocoded    int                `json:"geocoded"`
	Capped      bool               `json:"capped"`
}

// SkippedTotal returns the number of cases rejected by a gate.
func (r *RunResult) SkippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// Run drains src and processes every case. Each run gets a fresh run id and
// an empty name cache. Source errors and store lookup errors abort the run;
// the partial result is returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, src extract.Source) (*RunResult, error) {
	p.runID = uuid.NewString()
	p.cache = NewNameCache()

	log := zap.L().With(zap.String("run_id", p.runID))
	log.Info("pipeline: starting run",
		zap.Int("max_cases", p.cfg.MaxCases),
		zap.Bool("dry_run", p.cfg.DryRun),
	)

	result := &RunResult{RunID: p.runID, Skipped: make(map[SkipReason]int)}
	for {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "pipeline: run cancelled")
		}
		if p.cfg.MaxCases > 0 && result.Cases >= p.cfg.MaxCases {
			result.Capped = true
			log.Warn("pipeline: case cap reached", zap.Int("max_cases", p.cfg.MaxCases))
			break
		}

		c, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, eris.Wrap(err, "pipeline: read case")
		}
		result.Cases++

		cr, err := p.ProcessCase(ctx, c)
		if skip, ok := AsSkip(err); ok {
			result.Skipped[skip.Reason]++
			log.Info("pipeline: case skipped",
				zap.String("case_id", skip.CaseID),
				zap.String("reason", string(skip.Reason)),
				zap.String("detail", skip.Detail),
			)
			continue
		}
		if err != nil {
			return result, err
		}
		result.add(cr)
	}

	log.Info("pipeline: run complete",
		zap.Int("cases", result.Cases),
		zap.Int("skipped", result.SkippedTotal()),
		zap.Int("written", result.Written),
		zap.Int("locked", result.Locked),
		zap.Int("write_errors", result.WriteErrors),
		zap.Int("names_cached", p.cache.Len()),
	)
	return result, nil
}

func (r *RunResult) add(cr *CaseResult) {
	r.Processed++
	r.Planned += cr.Planned
	r.Written += cr.Written
	r.Locked += len(cr.Locked)
	r.WriteErrors += cr.WriteErrors
	switch cr.Correction.Outcome {
	case geo.OutcomeCorrected:
		r.Corrected++
	case geo.OutcomeGeocoded:
		r.Geocoded++
	}
}
