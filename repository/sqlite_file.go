package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
)

// sqliteFileRepo, FileRepository interface'inin SQLite implementasyonu.
type sqliteFileRepo struct {
	db *sql.DB
}

// NewSQLiteFileRepo, constructor, interface döner.
func NewSQLiteFileRepo(db *sql.DB) FileRepository {
	return &sqliteFileRepo{db: db}
}

// Create, kaydı ekler. ID çağıran tarafından üretilir (uuid);
// created_at DB'den döner.
func (r *sqliteFileRepo) Create(ctx context.Context, file *models.FileRecord) error {
	query := `
		INSERT INTO files (id, owner_id, filename, disk_name, mime_type, size)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		file.ID,
		file.OwnerID,
		file.Filename,
		file.DiskName,
		file.MimeType,
		file.Size,
	).Scan(&file.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

func (r *sqliteFileRepo) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `
		SELECT id, owner_id, filename, disk_name, mime_type, size, created_at
		FROM files WHERE id = ?`

	var f models.FileRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.OwnerID, &f.Filename, &f.DiskName, &f.MimeType, &f.Size, &f.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file by id: %w", err)
	}

	return &f, nil
}

func (r *sqliteFileRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}

	return nil
}
