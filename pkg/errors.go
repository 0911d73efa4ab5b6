// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Error'lar sabit değişkenlerdir, karşılaştırma errors.Is ile yapılır:
//
//	if errors.Is(err, pkg.ErrRateLimited) { ... }
//
// Detay eklemek için wrap edilir: fmt.Errorf("%w: file too large", pkg.ErrPayloadTooLarge)
package pkg

import (
	"errors"
	"fmt"
)

// Genel error'lar.
// Handler katmanı bu error'ları HTTP status code'larına map'ler.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")
)

// Optimistic mutation ve attachment pipeline error'ları.
//
// Taksonomi:
//   - ErrBadRequest      → ValidationError: transaction hiç başlamaz
//   - ErrRateLimited     → admission reddi, hiçbir yan etki yok
//   - ErrUpload ailesi   → sadece composer'ı etkiler, mesaj transaction'larını asla geri almaz
//   - ErrMutationConflict → commit satırı bulamadı; log'lanır, kullanıcıya gösterilmez
//   - ErrNetwork         → message-create başarısız; tam rollback + kullanıcı bildirimi
var (
	ErrRateLimited      = errors.New("rate limited")
	ErrUpload           = errors.New("upload failed")
	ErrMutationConflict = errors.New("mutation conflict")
	ErrNetwork          = errors.New("network error")

	// ErrUpload alt türleri, errors.Is(err, ErrUpload) hepsi için true döner.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrUpload)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported type", ErrUpload)
	ErrTransport       = fmt.Errorf("%w: transport error", ErrUpload)
)
