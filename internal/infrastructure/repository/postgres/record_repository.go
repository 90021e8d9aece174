package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

// RecordRepository is the knowledge store: raw crawled records and their
// refined structured rows, keyed by the same content-hash id.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS raw_records (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	course_id TEXT NOT NULL DEFAULT '',
	posted_at TIMESTAMPTZ NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS structured_records (
	id TEXT PRIMARY KEY REFERENCES raw_records(id),
	course_id TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	real_due_date TIMESTAMPTZ,
	past_due BOOLEAN NOT NULL DEFAULT FALSE,
	importance INT NOT NULL,
	week_index INT NOT NULL DEFAULT 0,
	summary TEXT NOT NULL,
	posted_at TIMESTAMPTZ NOT NULL,
	raw_ref TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_records_status ON raw_records(status);
CREATE INDEX IF NOT EXISTS idx_raw_records_posted_at ON raw_records(posted_at DESC);
CREATE INDEX IF NOT EXISTS idx_structured_records_due ON structured_records(real_due_date);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// CreateRaw inserts the record or leaves the existing row untouched: the
// id is a content hash, so a conflict means the same record was crawled
// again.
func (r *RecordRepository) CreateRaw(ctx context.Context, raw *domain.RawRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO raw_records (id, text, source_url, course_id, posted_at, fetched_at, status, error_message)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`,
		raw.ID, raw.Text, raw.SourceURL, raw.CourseID, raw.PostedAt, raw.FetchedAt, string(raw.Status), raw.Error,
	)
	if err != nil {
		return fmt.Errorf("insert raw record: %w", err)
	}
	return nil
}

func (r *RecordRepository) GetRaw(ctx context.Context, id string) (*domain.RawRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, text, source_url, course_id, posted_at, fetched_at, status, error_message
FROM raw_records
WHERE id = $1
`, id)

	raw, err := scanRaw(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get raw record", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan raw record: %w", err)
	}
	return raw, nil
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, id string, status domain.RecordStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE raw_records
SET status = $2, error_message = $3
WHERE id = $1
`, id, string(status), errMessage)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update record status", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *RecordRepository) ListByStatus(ctx context.Context, status domain.RecordStatus, limit int) ([]domain.RawRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, text, source_url, course_id, posted_at, fetched_at, status, error_message
FROM raw_records
WHERE status = $1
ORDER BY posted_at ASC
LIMIT $2
`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list records by status: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord
	for rows.Next() {
		raw, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw record: %w", err)
		}
		out = append(out, *raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw records: %w", err)
	}
	return out, nil
}

// UpsertStructured re-validates at the storage boundary; an invalid
// record never reaches the table regardless of which caller produced it.
func (r *RecordRepository) UpsertStructured(ctx context.Context, rec *domain.StructuredRecord) error {
	if err := domain.ValidateStructured(rec); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO structured_records (id, course_id, category, real_due_date, past_due, importance, week_index, summary, posted_at, raw_ref, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	course_id = EXCLUDED.course_id,
	category = EXCLUDED.category,
	real_due_date = EXCLUDED.real_due_date,
	past_due = EXCLUDED.past_due,
	importance = EXCLUDED.importance,
	week_index = EXCLUDED.week_index,
	summary = EXCLUDED.summary,
	posted_at = EXCLUDED.posted_at,
	raw_ref = EXCLUDED.raw_ref,
	updated_at = EXCLUDED.updated_at
`,
		rec.ID, rec.CourseID, string(rec.Category), rec.RealDueDate, rec.PastDue, rec.Importance,
		rec.WeekIndex, rec.Summary, rec.PostedAt, rec.RawRef, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert structured record: %w", err)
	}
	return nil
}

func (r *RecordRepository) GetStructured(ctx context.Context, id string) (*domain.StructuredRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, course_id, category, real_due_date, past_due, importance, week_index, summary, posted_at, raw_ref, updated_at
FROM structured_records
WHERE id = $1
`, id)

	rec, err := scanStructured(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get structured record", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan structured record: %w", err)
	}
	return rec, nil
}

func (r *RecordRepository) AllStructured(ctx context.Context) ([]domain.StructuredRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, course_id, category, real_due_date, past_due, importance, week_index, summary, posted_at, raw_ref, updated_at
FROM structured_records
ORDER BY posted_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list structured records: %w", err)
	}
	defer rows.Close()

	var out []domain.StructuredRecord
	for rows.Next() {
		rec, err := scanStructured(rows)
		if err != nil {
			return nil, fmt.Errorf("scan structured record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate structured records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRaw(row rowScanner) (*domain.RawRecord, error) {
	var raw domain.RawRecord
	var status string
	err := row.Scan(
		&raw.ID, &raw.Text, &raw.SourceURL, &raw.CourseID,
		&raw.PostedAt, &raw.FetchedAt, &status, &raw.Error,
	)
	if err != nil {
		return nil, err
	}
	raw.Status = domain.RecordStatus(status)
	return &raw, nil
}

func scanStructured(row rowScanner) (*domain.StructuredRecord, error) {
	var rec domain.StructuredRecord
	var category string
	var due sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.CourseID, &category, &due, &rec.PastDue, &rec.Importance,
		&rec.WeekIndex, &rec.Summary, &rec.PostedAt, &rec.RawRef, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Category = domain.Category(category)
	if due.Valid {
		t := due.Time
		rec.RealDueDate = &t
	}
	return &rec, nil
}
