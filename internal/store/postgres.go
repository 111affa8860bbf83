package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/aak-rpa/henstilling-sync/internal/db"
	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool   db.Pool
	upsert string
	now    func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// The sync run is sequential; a small pool is plenty.
	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, upsert: upsertStatement(db.Dollar), now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS violation_records (
	record_key  TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	item_number INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL,
	owner_name  TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	valid_from  DATE,
	valid_to    DATE,
	area        DOUBLE PRECISION,
	permit_type TEXT,
	status      TEXT NOT NULL DEFAULT 'New',
	last_run_id TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_violation_records_case_id ON violation_records(case_id);
CREATE INDEX IF NOT EXISTS idx_violation_records_owner_id ON violation_records(owner_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_violation_records_status ON violation_records(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindByCase(ctx context.Context, caseID string) ([]model.StoredRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM violation_records WHERE case_id = $1 ORDER BY item_number`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find case %s", caseID)
	}
	return collectPostgres(rows)
}

func (s *PostgresStore) FindCachedName(ctx context.Context, ownerID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT owner_name FROM violation_records
		 WHERE owner_id = $1 AND owner_name <> '' AND owner_name <> $2
		 ORDER BY updated_at DESC LIMIT 1`,
		ownerID, model.FallbackOwnerName,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: cached name for %s", ownerID)
	}
	return name, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *model.StoredRecord) (bool, error) {
	now := s.now().UTC()
	lat, lon := coordParts(rec.Coord)

	tag, err := s.pool.Exec(ctx, s.upsert,
		rec.Key, rec.CaseID, rec.ItemNumber, rec.Description,
		rec.OwnerID, rec.OwnerName, rec.Address, lat, lon,
		rec.ValidFrom, rec.ValidTo, rec.Area, rec.PermitType, rec.Status,
		rec.LastRunID, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert %s", rec.Key)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.StoredRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM violation_records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = ` + db.Dollar(len(args))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += ` AND owner_id = ` + db.Dollar(len(args))
	}
	args = append(args, limitOrDefault(filter.Limit))
	query += ` ORDER BY case_id, item_number LIMIT ` + db.Dollar(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET ` + db.Dollar(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	return collectPostgres(rows)
}

func collectPostgres(rows pgx.Rows) ([]model.StoredRecord, error) {
	defer rows.Close()

	var out []model.StoredRecord
	for rows.Next() {
		var (
			r        model.StoredRecord
			lat, lon *float64
		)
		if err := rows.Scan(&r.Key, &r.CaseID, &r.ItemNumber, &r.Description, &r.OwnerID, &r.OwnerName, &r.Address,
			&lat, &lon, &r.ValidFrom, &r.ValidTo, &r.Area, &r.PermitType, &r.Status, &r.LastRunID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.Coord = coordFrom(lat, lon)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}
