package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"linkcard/internal/domain"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PreviewRepository implements domain.PreviewRepository using PostgreSQL
type PreviewRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPreviewRepository creates a new PostgreSQL preview repository
func NewPreviewRepository(db *sql.DB, logger *slog.Logger) *PreviewRepository {
	return &PreviewRepository{
		db:     db,
		logger: logger,
	}
}

const previewColumns = `id, url, metadata, status, error, resolved_at, created_at, updated_at`

// scanPreview reads one row selected with previewColumns
func scanPreview(scanner interface{ Scan(...interface{}) error }) (*domain.Preview, error) {
	preview := &domain.Preview{}
	var (
		metadataBytes []byte
		errMsg        sql.NullString
		resolvedAt    sql.NullTime
		updatedAt     sql.NullTime
	)

	err := scanner.Scan(
		&preview.ID,
		&preview.URL,
		&metadataBytes,
		&preview.Status,
		&errMsg,
		&resolvedAt,
		&preview.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &preview.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preview metadata: %w", err)
		}
	}
	if preview.Metadata.URL == "" {
		preview.Metadata.URL = preview.URL
	}
	if errMsg.Valid {
		preview.Error = &errMsg.String
	}
	if resolvedAt.Valid {
		preview.ResolvedAt = &resolvedAt.Time
	}
	if updatedAt.Valid {
		preview.UpdatedAt = &updatedAt.Time
	}

	return preview, nil
}

// GetByID retrieves a preview by its UUID
func (r *PreviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Preview, error) {
	query := `SELECT ` + previewColumns + ` FROM previews WHERE id = $1`

	preview, err := scanPreview(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug("Preview not found", "preview_id", id)
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to query preview",
			"error", err,
			"preview_id", id,
		)
		return nil, fmt.Errorf("failed to query preview: %w", err)
	}

	return preview, nil
}

// GetByURL retrieves a preview by its canonical URL
func (r *PreviewRepository) GetByURL(ctx context.Context, url string) (*domain.Preview, error) {
	query := `SELECT ` + previewColumns + ` FROM previews WHERE url = $1`

	preview, err := scanPreview(r.db.QueryRowContext(ctx, query, url))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query preview by url: %w", err)
	}

	return preview, nil
}

// Create inserts a new preview. The ID and CreatedAt are filled in when zero.
func (r *PreviewRepository) Create(ctx context.Context, preview *domain.Preview) error {
	if preview.ID == uuid.Nil {
		preview.ID = uuid.New()
	}
	if preview.CreatedAt.IsZero() {
		preview.CreatedAt = time.Now()
	}
	if preview.Status == "" {
		preview.Status = domain.PreviewStatusPending
	}
	if preview.Metadata.URL == "" {
		preview.Metadata.URL = preview.URL
	}

	metadataJSON, err := json.Marshal(preview.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal preview metadata: %w", err)
	}

	query := `
		INSERT INTO previews (id, url, metadata, status, error, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		preview.ID,
		preview.URL,
		metadataJSON,
		preview.Status,
		preview.Error,
		preview.ResolvedAt,
		preview.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("preview for %s: %w", preview.URL, domain.ErrAlreadyExists)
		}
		r.logger.Error("Failed to create preview",
			"error", err,
			"url", preview.URL,
		)
		return fmt.Errorf("failed to create preview: %w", err)
	}

	r.logger.Debug("Preview created", "preview_id", preview.ID, "url", preview.URL)
	return nil
}

// Update writes metadata, status, error and resolved_at of an existing preview
func (r *PreviewRepository) Update(ctx context.Context, preview *domain.Preview) error {
	metadataJSON, err := json.Marshal(preview.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal preview metadata: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE previews
		SET metadata = $2, status = $3, error = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		preview.ID,
		metadataJSON,
		preview.Status,
		preview.Error,
		preview.ResolvedAt,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to update preview",
			"error", err,
			"preview_id", preview.ID,
		)
		return fmt.Errorf("failed to update preview: %w", err)
	}

	if err := expectOneRow(res); err != nil {
		return err
	}

	preview.UpdatedAt = &now
	return nil
}

// UpdateStatus updates the resolution status and error message
func (r *PreviewRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	query := `UPDATE previews SET status = $2, error = $3, updated_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update preview status: %w", err)
	}

	return expectOneRow(res)
}

// ListRecent returns the most recently created previews
func (r *PreviewRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Preview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + previewColumns + ` FROM previews ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list previews: %w", err)
	}
	defer rows.Close()

	var previews []*domain.Preview
	for rows.Next() {
		preview, err := scanPreview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preview row: %w", err)
		}
		previews = append(previews, preview)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preview rows: %w", err)
	}

	return previews, nil
}

func expectOneRow(res sql.Result) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
