package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/services"
)

// multipartOverhead, multipart boundary ve header'ları için dosya limitine eklenen pay.
const multipartOverhead = 1 << 20

// UploadHandler, ek yükleme ve görüntüleme endpoint'lerini yönetir.
//
// Dependency'ler:
// - uploadService: doğrulama + disk + metadata kaydı
// - signer: süreli görüntüleme URL'leri
// - maxSize: istek gövdesi üst sınırının hesaplanması için
type UploadHandler struct {
	uploadService services.UploadService
	signer        services.SignedURLService
	maxSize       int64
	log           *logger.Logger
}

// NewUploadHandler, constructor.
func NewUploadHandler(
	uploadService services.UploadService,
	signer services.SignedURLService,
	maxSize int64,
	log *logger.Logger,
) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		signer:        signer,
		maxSize:       maxSize,
		log:           log.Named("upload_handler"),
	}
}

// Upload godoc
// POST /api/uploads
// Multipart "file" alanını kabul eder, {"file": {"id", "url"}} döner.
//
// Dönen url, TTL boyunca geçerli imzalı bir URL'dir; client bunu
// phase-2 lookup başarısız olursa fallback olarak kullanır.
//
// Hatalar: 413 (boyut), 415 (tür), 400 (eksik alan).
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)

	// Form'u belleğe/diske parse etmek yerine part'lar stream edilir;
	// servis en fazla maxSize+1 bayt okur.
	mr, err := r.MultipartReader()
	if err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "multipart/form-data body required")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "file field is required")
			return
		}
		if err != nil {
			h.writeBodyError(w, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		record, err := h.uploadService.Upload(r.Context(), userID, part.FileName(), part)
		part.Close()
		if err != nil {
			h.writeBodyError(w, err)
			return
		}

		fallbackURL, _ := h.signer.Sign(record.ID)
		pkg.Write(w, http.StatusCreated, models.UploadResponse{
			File: models.UploadedFile{ID: record.ID, URL: fallbackURL},
		})
		return
	}
}

// SignedURL godoc
// GET /api/files/{id}/url
// Dosya için yeni bir imzalı görüntüleme URL'i döner: {"success": true, "url": "..."}
func (h *UploadHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("id")

	record, f, err := h.uploadService.Open(r.Context(), fileID)
	if err != nil {
		pkg.Write(w, pkg.StatusFor(err), models.SignedURLResponse{Success: false, Error: err.Error()})
		return
	}
	f.Close()

	signed, expiresAt := h.signer.Sign(record.ID)
	w.Header().Set("Expires", expiresAt.UTC().Format(http.TimeFormat))
	pkg.Write(w, http.StatusOK, models.SignedURLResponse{Success: true, URL: signed})
}

// Content godoc
// GET /api/files/{id}/content?exp=...&sig=...
// İmza ve süre doğrulanır, dosya stream edilir. Kimlik gerekmez: imza yetkidir.
func (h *UploadHandler) Content(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("id")
	q := r.URL.Query()

	if err := h.signer.Verify(fileID, q.Get("exp"), q.Get("sig")); err != nil {
		pkg.Error(w, err)
		return
	}

	record, f, err := h.uploadService.Open(r.Context(), fileID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", record.Filename))
	http.ServeContent(w, r, "", record.CreatedAt, f)
}

// writeBodyError, MaxBytesReader'ın kestiği gövdeyi 413'e, diğer hataları
// domain status code'larına çevirir.
func (h *UploadHandler) writeBodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		pkg.Error(w, fmt.Errorf("%w: request body too large", pkg.ErrPayloadTooLarge))
		return
	}
	if pkg.StatusFor(err) == http.StatusInternalServerError {
		h.log.Error("upload failed", "error", err)
	}
	pkg.Error(w, err)
}
