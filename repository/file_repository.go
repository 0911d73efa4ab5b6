package repository

import (
	"context"

	"github.com/akinalp/chatflow/models"
)

// FileRepository, yüklenen dosyaların metadata işlemleri için interface.
//
// Dosyanın baytları diskte durur; repository sadece kimin, hangi isimle,
// hangi türde ve boyutta yüklediğini tutar. Signed URL doğrulandıktan sonra
// GetByID ile disk adı bulunur.
type FileRepository interface {
	Create(ctx context.Context, file *models.FileRecord) error
	GetByID(ctx context.Context, id string) (*models.FileRecord, error)
	Delete(ctx context.Context, id string) error
}
