// Package reconcile decides which stored records a freshly enriched case may
// write. It performs no I/O.
package reconcile

import (
	"time"

	"github.com/aak-rpa/henstilling-sync/internal/identity"
	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// EnrichedCase is a case after gating and enrichment. Items holds only the
// allow-listed violation items, with Category and PermitType filled.
type EnrichedCase struct {
	Case      *model.Case
	OwnerName string
	Coord     *model.Coordinate
	Items     []model.ViolationItem
	RunID     string
}

// Plan is the set of writes for one case.
type Plan struct {
	Upserts []model.StoredRecord
	Locked  []string // keys skipped because downstream owns them
}

// Reconciler merges enriched cases with persisted state.
type Reconciler struct {
	catalog *identity.Catalog
}

// New creates a Reconciler that labels records from catalog.
func New(catalog *identity.Catalog) *Reconciler {
	return &Reconciler{catalog: catalog}
}

// Plan computes the upserts for ec given the records already stored for the
// same case. Records whose status has moved past New are never touched.
func (r *Reconciler) Plan(ec EnrichedCase, existing []model.StoredRecord) Plan {
	byKey := make(map[string]*model.StoredRecord, len(existing))
	for i := range existing {
		byKey[existing[i].Key] = &existing[i]
	}

	var plan Plan
	for _, item := range ec.Items {
		key := identity.BuildItemKey(ec.Case.ID, item.Number)
		prev := byKey[key]
		if prev != nil && prev.Locked() {
			plan.Locked = append(plan.Locked, key)
			continue
		}
		plan.Upserts = append(plan.Upserts, r.build(ec, item, key, prev))
	}
	return plan
}

func (r *Reconciler) build(ec EnrichedCase, item model.ViolationItem, key string, prev *model.StoredRecord) model.StoredRecord {
	rec := model.StoredRecord{
		Key:         key,
		CaseID:      ec.Case.ID,
		ItemNumber:  item.Number,
		Description: r.catalog.Description(item.Text),
		OwnerID:     ec.Case.OwnerID,
		OwnerName:   ec.OwnerName,
		Address:     ec.Case.Address,
		Coord:       copyCoord(ec.Coord),
		ValidFrom:   copyTime(ec.Case.ValidFrom),
		Status:      model.StatusNew,
		LastRunID:   ec.RunID,
	}

	if prev != nil {
		rec.ValidTo = copyTime(prev.ValidTo)
		rec.Area = copyFloat(prev.Area)
		rec.PermitType = copyString(prev.PermitType)
	}
	if rec.PermitType == nil {
		label := item.PermitType
		if label == "" {
			label, _ = r.catalog.Label(item.Category)
		}
		if label != "" {
			rec.PermitType = &label
		}
	}
	return rec
}

func copyCoord(c *model.Coordinate) *model.Coordinate {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
