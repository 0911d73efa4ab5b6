package models

import (
	"strings"
	"time"
)

// UploadedFile, upload endpoint'inin döndüğü dosya bilgisi.
// URL, phase-2 signed URL çözümlenemezse kullanılacak fallback'tir.
type UploadedFile struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// UploadResponse: POST /api/uploads yanıtı: {"file": {"id": "...", "url": "..."}}
type UploadResponse struct {
	File UploadedFile `json:"file"`
}

// SignedURLResponse: GET /api/files/{id}/url yanıtı.
type SignedURLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FileRecord, sunucu tarafında yüklenen dosyanın metadata kaydı.
// DB'deki "files" tablosunun Go karşılığı.
type FileRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Filename  string    `json:"filename"`
	DiskName  string    `json:"-"` // Diskteki rastgele isim, dışarı sızdırılmaz
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// allowedImageTypes, ek olarak kabul edilen resim türleri.
// SVG bilerek yok: tarayıcıda script çalıştırabilir.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/avif": true,
}

// IsAllowedImageType, MIME türünün (parametreler hariç) kabul edilen bir resim olup olmadığını döner.
// Hem client (upload öncesi) hem sunucu (kaydetmeden önce) aynı listeyi kullanır.
func IsAllowedImageType(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	return allowedImageTypes[strings.ToLower(strings.TrimSpace(base))]
}
