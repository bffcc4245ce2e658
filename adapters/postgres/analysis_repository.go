package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"

	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/run"
	"goequity/internal/errors"
	"goequity/ports"

	"github.com/jmoiron/sqlx"
)

// AnalysisRepositoryImpl implements AnalysisRepository for PostgreSQL.
// Manifest and report are stored as JSONB documents.
type AnalysisRepositoryImpl struct {
	db *sqlx.DB
}

// NewAnalysisRepository creates a new PostgreSQL analysis repository
func NewAnalysisRepository(db *sqlx.DB) ports.AnalysisRepository {
	return &AnalysisRepositoryImpl{db: db}
}

type analysisRow struct {
	Kind     string `db:"kind"`
	Manifest []byte `db:"manifest"`
	Report   []byte `db:"report"`
}

// Save inserts the record, replacing any previous record with the same ID
func (r *AnalysisRepositoryImpl) Save(ctx context.Context, record *run.Record) error {
	if record == nil || record.Manifest == nil {
		return errors.InvalidInput("record has no manifest")
	}
	m := record.Manifest

	manifest, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "failed to encode manifest")
	}
	var report []byte
	switch {
	case record.BaseCase != nil:
		report, err = json.Marshal(record.BaseCase)
	case record.Probabilistic != nil:
		report, err = json.Marshal(record.Probabilistic)
	}
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses (id, run_id, kind, fingerprint, seed, code_version, manifest, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			kind = EXCLUDED.kind,
			fingerprint = EXCLUDED.fingerprint,
			seed = EXCLUDED.seed,
			code_version = EXCLUDED.code_version,
			manifest = EXCLUDED.manifest,
			report = EXCLUDED.report
	`, m.AnalysisID.String(), m.RunID.String(), string(m.Kind), m.Fingerprint.Fingerprint.String(),
		strconv.FormatUint(m.Seed, 10), m.CodeVersion, manifest, nullableJSON(report), m.CreatedAt.Time())
	if err != nil {
		return errors.DatabaseError("failed to save analysis", err)
	}
	return nil
}

// Get loads one analysis by ID
func (r *AnalysisRepositoryImpl) Get(ctx context.Context, id core.AnalysisID) (*run.Record, error) {
	var row analysisRow
	err := r.db.GetContext(ctx, &row, `
		SELECT kind, manifest, report
		FROM analyses
		WHERE id = $1
	`, id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrAnalysisNotFound, id)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load analysis", err)
	}
	return decodeRecord(row)
}

// List returns the newest analyses first, optionally limited
func (r *AnalysisRepositoryImpl) List(ctx context.Context, limit int) ([]*run.Record, error) {
	query := `
		SELECT kind, manifest, report
		FROM analyses
		ORDER BY created_at DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var rows []analysisRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.DatabaseError("failed to list analyses", err)
	}

	records := make([]*run.Record, 0, len(rows))
	for _, row := range rows {
		record, err := decodeRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes an analysis
func (r *AnalysisRepositoryImpl) Delete(ctx context.Context, id core.AnalysisID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, id.String())
	if err != nil {
		return errors.DatabaseError("failed to delete analysis", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("failed to delete analysis", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrAnalysisNotFound, id)
	}
	return nil
}

func decodeRecord(row analysisRow) (*run.Record, error) {
	record := &run.Record{Manifest: &run.RunManifest{}}
	if err := json.Unmarshal(row.Manifest, record.Manifest); err != nil {
		return nil, errors.Wrap(err, "failed to decode manifest")
	}
	if len(row.Report) == 0 {
		return record, nil
	}

	var err error
	switch run.Kind(row.Kind) {
	case run.KindBaseCase:
		record.BaseCase = &inequality.BaseCaseReport{}
		err = json.Unmarshal(row.Report, record.BaseCase)
	case run.KindProbabilistic:
		record.Probabilistic = &inequality.ProbabilisticReport{}
		err = json.Unmarshal(row.Report, record.Probabilistic)
	default:
		err = fmt.Errorf("unknown analysis kind %q", row.Kind)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode report")
	}
	return record, nil
}

// nullableJSON stores an absent report as SQL NULL rather than an empty
// document, which JSONB rejects
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
