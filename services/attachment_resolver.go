package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/cache"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/metrics"
)

// DefaultResolveTimeout, phase-2 signed URL lookup'ının bekleme üst sınırı.
const DefaultResolveTimeout = 3 * time.Second

// UploadAPI, resolver'ın ihtiyaç duyduğu API alt kümesi (client.Client bunu sağlar).
type UploadAPI interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadedFile, error)
	SignedURL(ctx context.Context, fileID string) (string, error)
}

// Blob, kullanıcının seçtiği ham dosya.
type Blob struct {
	Filename    string
	ContentType string // tarayıcının bildirdiği tür; boş olabilir, asıl karar içerikten verilir
	Data        []byte
}

// UploadResult, phase 1 çıktısı: kalıcı fileId + opsiyonel fallback URL.
type UploadResult struct {
	FileID      string
	FallbackURL string
}

// DisplaySource, phase-2 çözümlemesinin hangi kademede bittiği.
type DisplaySource string

const (
	SourceSigned   DisplaySource = "signed"
	SourceFallback DisplaySource = "fallback"
	SourceNone     DisplaySource = "none"
)

// ResolvedAttachment, phase 2 çıktısı. Source == SourceNone ise DisplayURL boştur
// ve bu bir hata DEĞİLDİR: fileId yine de mesaja eklenebilir.
type ResolvedAttachment struct {
	FileID     string
	DisplayURL string
	Source     DisplaySource
}

// AttachmentResolver, iki fazlı ek pipeline'ı.
//
// Phase 1 (Upload) hata dönebilir: ErrPayloadTooLarge, ErrUnsupportedType,
// ErrRateLimited, ErrTransport. Phase 2 (Resolve) asla hata dönmez.
type AttachmentResolver interface {
	Upload(ctx context.Context, blob Blob) (*UploadResult, error)
	Resolve(ctx context.Context, fileID, fallbackURL string) ResolvedAttachment
}

type attachmentResolver struct {
	api     UploadAPI
	urls    *cache.TTLCache[string, string]
	maxSize int64
	timeout time.Duration
	log     *logger.Logger
}

// NewAttachmentResolver, constructor.
//
// urls: çözümlenmiş signed URL'lerin fileId bazlı cache'i. Aynı geçmiş mesaj
// her render'da tekrar çözümlendiğinde admission bütçesi harcanmaz. nil olabilir.
// timeout <= 0 ise DefaultResolveTimeout kullanılır.
func NewAttachmentResolver(
	api UploadAPI,
	urls *cache.TTLCache[string, string],
	maxSize int64,
	timeout time.Duration,
	log *logger.Logger,
) AttachmentResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &attachmentResolver{
		api:     api,
		urls:    urls,
		maxSize: maxSize,
		timeout: timeout,
		log:     log.Named("attachment"),
	}
}

// Upload, dosyayı gönderimden ÖNCE doğrular ve yükler.
//
// Tür kararı tarayıcının bildirdiği Content-Type'tan değil, içeriğin ilk
// byte'larından verilir (uzantısı .png olan bir PDF reddedilir).
func (r *attachmentResolver) Upload(ctx context.Context, blob Blob) (*UploadResult, error) {
	size := int64(len(blob.Data))
	if size > r.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %dMB)", pkg.ErrPayloadTooLarge, size, r.maxSize/(1024*1024))
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty file", pkg.ErrUnsupportedType)
	}

	detected := mimetype.Detect(blob.Data).String()
	if !models.IsAllowedImageType(detected) {
		return nil, fmt.Errorf("%w: %s", pkg.ErrUnsupportedType, detected)
	}

	file, err := r.api.Upload(ctx, blob.Filename, detected, blob.Data)
	if err != nil {
		if errors.Is(err, pkg.ErrRateLimited) {
			r.log.Info("upload denied by admission gate", "filename", blob.Filename)
		} else {
			r.log.Warn("upload failed", "filename", blob.Filename, "error", err)
		}
		return nil, err
	}

	return &UploadResult{FileID: file.ID, FallbackURL: file.URL}, nil
}

// Resolve, fileId için gösterilebilir bir URL bulur: signed → fallback → none.
//
// Yan etkisizdir ve istenildiği kadar çağrılabilir; phase-1 state'ine dokunmaz.
// Lookup süresi r.timeout ile sınırlıdır, UI hiçbir zaman süresiz beklemez.
func (r *attachmentResolver) Resolve(ctx context.Context, fileID, fallbackURL string) ResolvedAttachment {
	out := ResolvedAttachment{FileID: fileID}

	if fileID != "" {
		if r.urls != nil {
			if u, ok := r.urls.Get(fileID); ok {
				metrics.ResolveFallbacks.WithLabelValues("cached").Inc()
				out.DisplayURL, out.Source = u, SourceSigned
				return out
			}
		}

		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		u, err := r.api.SignedURL(lookupCtx, fileID)
		cancel()

		switch {
		case err == nil && u != "":
			if r.urls != nil {
				r.urls.Set(fileID, u)
			}
			metrics.ResolveFallbacks.WithLabelValues(string(SourceSigned)).Inc()
			out.DisplayURL, out.Source = u, SourceSigned
			return out
		case err != nil:
			r.log.Debug("signed url lookup failed, falling back", "file_id", fileID, "error", err)
		}
	}

	if fallbackURL != "" {
		metrics.ResolveFallbacks.WithLabelValues(string(SourceFallback)).Inc()
		out.DisplayURL, out.Source = fallbackURL, SourceFallback
		return out
	}

	metrics.ResolveFallbacks.WithLabelValues(string(SourceNone)).Inc()
	out.Source = SourceNone
	return out
}
