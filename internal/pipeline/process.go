package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/geo"
	"github.com/aak-rpa/henstilling-sync/internal/identity"
	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/reconcile"
)

// CaseResult describes what happened to one case.
type CaseResult struct {
	CaseID      string         `json:"case_id"`
	Name        NameResolution `json:"name"`
	Correction  geo.Correction `json:"-"`
	Planned     int            `json:"planned"`
	Written     int            `json:"written"`
	Locked      []string       `json:"locked,omitempty"`
	WriteErrors int            `json:"write_errors"`
}

// ProcessCase runs one case through the gates, enrichment, reconciliation and
// upsert. A gated case returns a *SkipError. A failed store lookup is returned
// as an error; a failed single upsert is logged and counted instead.
func (p *Pipeline) ProcessCase(ctx context.Context, c *model.Case) (*CaseResult, error) {
	items, err := p.gate(c)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", p.runID), zap.String("case_id", c.ID))

	existing, err := p.store.FindByCase(ctx, c.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load case %s", c.ID)
	}

	result := &CaseResult{CaseID: c.ID}
	if allLocked(c.ID, items, existing) {
		// Nothing can be written, so skip the outbound lookups.
		result.Locked = p.reconciler.Plan(reconcile.EnrichedCase{Case: c, Items: items}, existing).Locked
		log.Debug("pipeline: every item locked", zap.Strings("keys", result.Locked))
		return result, nil
	}

	result.Name = p.resolveName(ctx, c)
	result.Correction = p.correct(ctx, c)
	if result.Correction.Reason != "" {
		log.Info("pipeline: coordinate not corrected",
			zap.String("outcome", string(result.Correction.Outcome)),
			zap.String("reason", result.Correction.Reason),
		)
	}

	plan := p.reconciler.Plan(reconcile.EnrichedCase{
		Case:      c,
		OwnerName: result.Name.Name,
		Coord:     result.Correction.Coord,
		Items:     items,
		RunID:     p.runID,
	}, existing)
	result.Planned = len(plan.Upserts)
	result.Locked = plan.Locked
	for _, key := range plan.Locked {
		log.Debug("pipeline: record locked", zap.String("key", key))
	}

	if p.cfg.DryRun {
		return result, nil
	}

	for i := range plan.Upserts {
		rec := &plan.Upserts[i]
		written, err := p.store.Upsert(ctx, rec)
		if err != nil {
			result.WriteErrors++
			log.Error("pipeline: upsert failed", zap.String("key", rec.Key), zap.Error(err))
			continue
		}
		if !written {
			// Status moved past New between lookup and write.
			result.Locked = append(result.Locked, rec.Key)
			log.Debug("pipeline: record locked at write", zap.String("key", rec.Key))
			continue
		}
		result.Written++
	}
	return result, nil
}

// gate applies the case-level filters and returns the allow-listed items with
// category and permit type filled. Only the first allow-listed item for each
// item number is kept.
func (p *Pipeline) gate(c *model.Case) ([]model.ViolationItem, error) {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return nil, &SkipError{Reason: SkipMissingCaseID, Detail: "case has no identifier"}
	}
	if !c.IsOrganization() {
		return nil, &SkipError{CaseID: c.ID, Reason: SkipOwnerType, Detail: string(c.OwnerType)}
	}
	if c.OwnerID == "" {
		return nil, &SkipError{CaseID: c.ID, Reason: SkipInvalidOwnerID, Detail: "owner identifier missing"}
	}
	if !identity.ValidateOwnerID(c.OwnerID) {
		return nil, &SkipError{CaseID: c.ID, Reason: SkipInvalidOwnerID, Detail: c.OwnerID}
	}

	var items []model.ViolationItem
	seen := make(map[int]bool, len(c.Items))
	for _, it := range c.Items {
		code, ok := p.catalog.ParseCategory(it.Text)
		if !ok || it.Number <= 0 {
			continue
		}
		// Item numbers key the stored records; a repeat would overwrite the
		// first item's record in the same run.
		if seen[it.Number] {
			zap.L().Warn("pipeline: duplicate item number, dropping item",
				zap.String("case_id", c.ID),
				zap.Int("item", it.Number),
				zap.String("text", it.Text),
			)
			continue
		}
		seen[it.Number] = true
		it.Category = code
		it.PermitType, _ = p.catalog.Label(code)
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, &SkipError{CaseID: c.ID, Reason: SkipNoBillableItems, Detail: "no allow-listed violation items"}
	}
	return items, nil
}

func (p *Pipeline) correct(ctx context.Context, c *model.Case) geo.Correction {
	if p.corrector == nil {
		if c.Coord == nil {
			return geo.Correction{Outcome: geo.OutcomeMissing, Reason: "corrector disabled"}
		}
		return geo.Correction{Coord: c.Coord, Outcome: geo.OutcomeKept}
	}
	return p.corrector.Correct(ctx, c.Address, c.Coord)
}

func allLocked(caseID string, items []model.ViolationItem, existing []model.StoredRecord) bool {
	if len(existing) == 0 {
		return false
	}
	locked := make(map[string]bool, len(existing))
	for i := range existing {
		if existing[i].Locked() {
			locked[existing[i].Key] = true
		}
	}
	for _, it := range items {
		if !locked[identity.BuildItemKey(caseID, it.Number)] {
			return false
		}
	}
	return true
}
