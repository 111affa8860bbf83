// Package store persists violation records. Records are only ever inserted or
// updated while their status is New; there is no delete path.
package store

import (
	"context"

	"github.com/aak-rpa/henstilling-sync/internal/db"
	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Status  string `json:"status,omitempty"`
	OwnerID string `json:"owner_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the sync pipeline.
type Store interface {
	// FindByCase returns every record of a case ordered by item number.
	FindByCase(ctx context.Context, caseID string) ([]model.StoredRecord, error)

	// FindCachedName returns the most recently written display name for an
	// owner, or "" when none is known.
	FindCachedName(ctx context.Context, ownerID string) (string, error)

	// Upsert inserts rec or overwrites the stored row with the same key when
	// that row is still New. It reports whether a row was written.
	Upsert(ctx context.Context, rec *model.StoredRecord) (bool, error)

	ListRecords(ctx context.Context, filter RecordFilter) ([]model.StoredRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const recordsTable = "violation_records"

// recordColumns is the bind order used by every insert.
var recordColumns = []string{
	"record_key", "case_id", "item_number", "description",
	"owner_id", "owner_name", "address", "latitude", "longitude",
	"valid_from", "valid_to", "area", "permit_type", "status",
	"last_run_id", "created_at", "updated_at",
}

// selectColumns is the scan order used by every read.
const selectColumns = `record_key, case_id, item_number, description, owner_id, owner_name, address,
	latitude, longitude, valid_from, valid_to, area, permit_type, status, last_run_id, created_at, updated_at`

// newGuard matches a stored row this pipeline may still overwrite.
const newGuard = `("violation_records"."status" = 'New' OR "violation_records"."status" IS NULL OR "violation_records"."status" = '')`

func upsertStatement(ph db.Placeholder) string {
	updateCols := make([]string, 0, len(recordColumns))
	for _, c := range recordColumns {
		if c != "record_key" && c != "created_at" {
			updateCols = append(updateCols, c)
		}
	}
	stmt, err := db.UpsertSQL(db.UpsertConfig{
		Table:        recordsTable,
		Columns:      recordColumns,
		ConflictKeys: []string{"record_key"},
		UpdateCols:   updateCols,
		Where:        newGuard,
	}, ph)
	if err != nil {
		// The configuration above is static.
		panic(err)
	}
	return stmt
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

func coordParts(c *model.Coordinate) (lat, lon *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Lat, &c.Lon
}

func coordFrom(lat, lon *float64) *model.Coordinate {
	if lat == nil || lon == nil {
		return nil
	}
	return &model.Coordinate{Lat: *lat, Lon: *lon}
}
