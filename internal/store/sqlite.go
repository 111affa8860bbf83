package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aak-rpa/henstilling-sync/internal/db"
	"github.com/aak-rpa/henstilling-sync/internal/model"
)

const (
	sqliteDateLayout = "2006-01-02"
	sqliteTimeLayout = "2006-01-02 15:04:05.000000"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	upsert string
	now    func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB, upsert: upsertStatement(db.Question), now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS violation_records (
	record_key  TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	item_number INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL,
	owner_name  TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	latitude    REAL,
	longitude   REAL,
	valid_from  TEXT,
	valid_to    TEXT,
	area        REAL,
	permit_type TEXT,
	status      TEXT NOT NULL DEFAULT 'New',
	last_run_id TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_violation_records_case_id ON violation_records(case_id);
CREATE INDEX IF NOT EXISTS idx_violation_records_owner_id ON violation_records(owner_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_violation_records_status ON violation_records(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByCase(ctx context.Context, caseID string) ([]model.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM violation_records WHERE case_id = ? ORDER BY item_number`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find case %s", caseID)
	}
	return collectSQLite(rows)
}

func (s *SQLiteStore) FindCachedName(ctx context.Context, ownerID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_name FROM violation_records
		 WHERE owner_id = ? AND owner_name <> '' AND owner_name <> ?
		 ORDER BY updated_at DESC LIMIT 1`,
		ownerID, model.FallbackOwnerName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: cached name for %s", ownerID)
	}
	return name, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *model.StoredRecord) (bool, error) {
	now := s.now().UTC()
	lat, lon := coordParts(rec.Coord)

	res, err := s.db.ExecContext(ctx, s.upsert,
		rec.Key, rec.CaseID, rec.ItemNumber, rec.Description,
		rec.OwnerID, rec.OwnerName, rec.Address, lat, lon,
		formatDate(rec.ValidFrom), formatDate(rec.ValidTo), rec.Area, rec.PermitType, rec.Status,
		rec.LastRunID, now.Format(sqliteTimeLayout), now.Format(sqliteTimeLayout),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert %s", rec.Key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.StoredRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM violation_records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY case_id, item_number LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	return collectSQLite(rows)
}

func collectSQLite(rows *sql.Rows) ([]model.StoredRecord, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.StoredRecord
	for rows.Next() {
		var (
			r                    model.StoredRecord
			lat, lon, area       sql.NullFloat64
			validFrom, validTo   sql.NullString
			permitType           sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.Key, &r.CaseID, &r.ItemNumber, &r.Description, &r.OwnerID, &r.OwnerName, &r.Address,
			&lat, &lon, &validFrom, &validTo, &area, &permitType, &r.Status, &r.LastRunID, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if lat.Valid && lon.Valid {
			r.Coord = &model.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
		}
		if area.Valid {
			r.Area = &area.Float64
		}
		if permitType.Valid {
			r.PermitType = &permitType.String
		}
		r.ValidFrom = parseDate(validFrom)
		r.ValidTo = parseDate(validTo)
		r.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
		r.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updatedAt)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(sqliteDateLayout)
}

func parseDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(sqliteDateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
