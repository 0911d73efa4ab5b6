package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/metrics"
	"github.com/akinalp/chatflow/repository"
)

// Upload sonuçları için metrics label değerleri.
const (
	uploadResultOK          = "ok"
	uploadResultTooLarge    = "too_large"
	uploadResultUnsupported = "unsupported"
	uploadResultError       = "error"
)

// UploadService, sunucu tarafı dosya yükleme iş mantığı interface'i.
//
// Upload: boyut → tür (içerik sniff'lenir) → diske yaz → metadata kaydı.
// Open: signed URL doğrulandıktan sonra dosyayı okumak için açar; dönen
// *os.File'ı kapatmak çağıranın sorumluluğudur.
type UploadService interface {
	Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*models.FileRecord, error)
	Open(ctx context.Context, id string) (*models.FileRecord, *os.File, error)
}

type uploadService struct {
	fileRepo  repository.FileRepository
	uploadDir string
	maxSize   int64
	log       *logger.Logger
}

// NewUploadService, constructor.
func NewUploadService(
	fileRepo repository.FileRepository,
	uploadDir string,
	maxSize int64,
	log *logger.Logger,
) UploadService {
	return &uploadService{
		fileRepo:  fileRepo,
		uploadDir: uploadDir,
		maxSize:   maxSize,
		log:       log.Named("upload"),
	}
}

// Upload, dosyayı doğrular, diske kaydeder ve files tablosuna kayıt ekler.
//
// Client'ın gönderdiği Content-Type'a güvenilmez: tür, içeriğin ilk
// baytlarından mimetype ile tespit edilir. Limitin bir bayt fazlası okunur;
// böylece tam limit boyutundaki dosya kabul edilir, fazlası reddedilir.
func (s *uploadService) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*models.FileRecord, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		metrics.Uploads.WithLabelValues(uploadResultError).Inc()
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	if int64(len(data)) > s.maxSize {
		metrics.Uploads.WithLabelValues(uploadResultTooLarge).Inc()
		return nil, fmt.Errorf("%w: max %dMB", pkg.ErrPayloadTooLarge, s.maxSize/(1024*1024))
	}
	if len(data) == 0 {
		metrics.Uploads.WithLabelValues(uploadResultUnsupported).Inc()
		return nil, fmt.Errorf("%w: empty file", pkg.ErrUnsupportedType)
	}

	mtype := mimetype.Detect(data)
	if !models.IsAllowedImageType(mtype.String()) {
		metrics.Uploads.WithLabelValues(uploadResultUnsupported).Inc()
		return nil, fmt.Errorf("%w: %s", pkg.ErrUnsupportedType, mtype.String())
	}

	// Disk adı rastgeledir; orijinal isim sadece metadata'da tutulur.
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		metrics.Uploads.WithLabelValues(uploadResultError).Inc()
		return nil, fmt.Errorf("failed to generate random filename: %w", err)
	}
	diskName := hex.EncodeToString(randomBytes) + mtype.Extension()

	destPath := filepath.Join(s.uploadDir, diskName)
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		metrics.Uploads.WithLabelValues(uploadResultError).Inc()
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	record := &models.FileRecord{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Filename: sanitizeFilename(filename),
		DiskName: diskName,
		MimeType: mtype.String(),
		Size:     int64(len(data)),
	}

	if err := s.fileRepo.Create(ctx, record); err != nil {
		os.Remove(destPath) // Kayıtsız dosya diskte kalmasın
		metrics.Uploads.WithLabelValues(uploadResultError).Inc()
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	metrics.Uploads.WithLabelValues(uploadResultOK).Inc()
	s.log.Info("file uploaded", "file_id", record.ID, "owner_id", ownerID, "mime", record.MimeType, "size", record.Size)
	return record, nil
}

func (s *uploadService) Open(ctx context.Context, id string) (*models.FileRecord, *os.File, error) {
	record, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.uploadDir, record.DiskName))
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn("file record without content", "file_id", id)
		return nil, nil, fmt.Errorf("%w: file content missing", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return record, f, nil
}

// sanitizeFilename, dosya adını güvenli hale getirir.
// Path traversal denemelerini (../../etc/passwd gibi) temizler.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)

	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '\x00' {
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == ".." {
		name = "unnamed"
	}

	return name
}
