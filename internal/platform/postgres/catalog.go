package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/medscry/internal/domain"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/store"
)

// PostgresCatalog implements store.ContentCatalog on the content_items and
// rubrics tables. Retired items stay in the table with retired_at set.
type PostgresCatalog struct {
	db store.DBTX
}

// NewPostgresCatalog creates a catalog on a connection or transaction.
func NewPostgresCatalog(db store.DBTX) *PostgresCatalog {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresCatalog{db: db}
}

var _ store.ContentCatalog = (*PostgresCatalog)(nil)

const contentColumns = `id, domain, band, kind, difficulty, expected_seconds, option_count, step_count`

// GetItemsByDomainAndBand implements store.ContentCatalog.GetItemsByDomainAndBand.
func (c *PostgresCatalog) GetItemsByDomainAndBand(
	ctx context.Context,
	domainName string,
	band domain.Band,
) ([]domain.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items
		WHERE domain = $1 AND band = $2 AND retired_at IS NULL
		ORDER BY id`

	rows, err := c.db.QueryContext(ctx, query, domainName, string(band))
	if err != nil {
		logger.FromContext(ctx).Error("failed to query content items",
			slog.String("domain", domainName),
			slog.String("band", string(band)),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("content", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("content", "list", "row iteration failed", MapError(err))
	}
	return items, nil
}

// GetItemByID implements store.ContentCatalog.GetItemByID.
func (c *PostgresCatalog) GetItemByID(ctx context.Context, id string) (domain.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1 AND retired_at IS NULL`

	item, err := scanContent(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", store.ErrContentNotFound, id)
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to load content item",
			slog.String("content_id", id),
			slog.String("error", err.Error()))
		return nil, err
	}
	return item, nil
}

// Domains implements store.ContentCatalog.Domains.
func (c *PostgresCatalog) Domains(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT domain FROM content_items WHERE retired_at IS NULL ORDER BY domain`)
	if err != nil {
		return nil, store.NewStoreError("content", "domains", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, store.NewStoreError("content", "domains", "scan failed", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("content", "domains", "row iteration failed", MapError(err))
	}
	return out, nil
}

// GetRubric implements store.ContentCatalog.GetRubric.
func (c *PostgresCatalog) GetRubric(ctx context.Context, domainName string) (domain.Rubric, error) {
	var (
		r        = domain.Rubric{Domain: domainName}
		criteria []byte
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT passing_score, criteria FROM rubrics WHERE domain = $1`, domainName).
		Scan(&r.PassingScore, &criteria)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rubric{}, fmt.Errorf("%w: %q", store.ErrRubricNotFound, domainName)
	}
	if err != nil {
		return domain.Rubric{}, store.NewStoreError("rubric", "load", "query failed", MapError(err))
	}
	if err := json.Unmarshal(criteria, &r.Criteria); err != nil {
		return domain.Rubric{}, store.NewStoreError("rubric", "load", "criteria are not valid JSON", err)
	}
	return r, nil
}

// Import upserts a catalog seed in one transaction. Items missing from the
// seed are left untouched.
func Import(ctx context.Context, db *sql.DB, seed store.CatalogSeed) error {
	for _, rec := range seed.Items {
		if _, err := rec.Item(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	return store.RunInTransaction(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, rec := range seed.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO content_items (`+contentColumns+`, retired_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
				ON CONFLICT (id) DO UPDATE SET
					domain = EXCLUDED.domain, band = EXCLUDED.band, kind = EXCLUDED.kind,
					difficulty = EXCLUDED.difficulty, expected_seconds = EXCLUDED.expected_seconds,
					option_count = EXCLUDED.option_count, step_count = EXCLUDED.step_count,
					retired_at = NULL`,
				rec.ID, rec.Domain, string(rec.Band), string(rec.Kind), rec.Difficulty,
				rec.ExpectedSeconds, rec.OptionCount, rec.StepCount)
			if err != nil {
				return fmt.Errorf("failed to import content %q: %w", rec.ID, MapError(err))
			}
		}
		for _, r := range seed.Rubrics {
			criteria, err := json.Marshal(r.Criteria)
			if err != nil {
				return fmt.Errorf("failed to encode rubric %q: %w", r.Domain, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO rubrics (domain, passing_score, criteria) VALUES ($1, $2, $3)
				ON CONFLICT (domain) DO UPDATE SET
					passing_score = EXCLUDED.passing_score, criteria = EXCLUDED.criteria`,
				r.Domain, r.PassingScore, criteria)
			if err != nil {
				return fmt.Errorf("failed to import rubric %q: %w", r.Domain, MapError(err))
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (domain.ContentItem, error) {
	var (
		rec  domain.ContentRecord
		band string
		kind string
	)
	if err := row.Scan(&rec.ID, &rec.Domain, &band, &kind, &rec.Difficulty,
		&rec.ExpectedSeconds, &rec.OptionCount, &rec.StepCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, store.NewStoreError("content", "scan", "failed to scan content row", err)
	}
	rec.Band = domain.Band(band)
	rec.Kind = domain.ContentKind(kind)
	return rec.Item()
}
