package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OptimisticIDPrefix, henüz sunucu tarafından onaylanmamış mesajların
// geçici ID'lerinin başına eklenir. "optimistic-<uuid>" formatı sayesinde
// UI ve log'larda bir satırın optimistic olduğu tek bakışta anlaşılır.
const OptimisticIDPrefix = "optimistic-"

// MaxContentBytes, mesaj içeriğinin (JSON doküman) maksimum boyutu.
const MaxContentBytes = 64 << 10

// Author, mesaj yazarının denormalize edilmiş anlık görüntüsü.
// Mesaj oluşturulduktan sonra değişmez, yazar profilini güncellese bile
// eski mesajlar eski isim/avatar ile görünür.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// AttachmentRef, mesaja gömülen dosya referansı.
//
// FileID kalıcıdır ve her zaman yeniden çözümlenebilir.
// DisplayURL ise geçici bir görüntüleme kolaylığıdır, boş olabilir,
// signed URL süresi dolabilir. Mesajın asıl sahip olduğu şey FileID'dir.
type AttachmentRef struct {
	FileID     string `json:"fileId"`
	DisplayURL string `json:"displayUrl,omitempty"`
}

// Message, bir chat mesajını temsil eder.
//
// Client cache'inde iki farklı view'da görünebilir:
//   - channel-feed: kanalın ana akışı (thread root'ları RepliesCount ile)
//   - thread-feed: bir thread'in yanıt listesi
//
// İki view birbirinden bağımsız fetch edilir, ortak normalize store yoktur.
// Content opaque bir JSON dokümanıdır (rich-text editör çıktısı), core bunu yorumlamaz.
type Message struct {
	ID           string          `json:"id"`
	Content      json.RawMessage `json:"content"`
	ChannelID    string          `json:"channelId"`
	ThreadID     *string         `json:"threadId,omitempty"`
	Attachment   *AttachmentRef  `json:"attachmentRef,omitempty"`
	AuthorID     string          `json:"authorId"`
	AuthorName   string          `json:"authorName"`
	AuthorAvatar string          `json:"authorAvatar"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	RepliesCount int             `json:"repliesCount"`
}

// EntityID, cache store'un mesajı bulmak için kullandığı anahtar.
func (m Message) EntityID() string {
	return m.ID
}

// Clone, mesajın derin kopyasını döner.
//
// Snapshot'ların gerçekten immutable olması için pointer ve slice alanları
// (ThreadID, Attachment, Content) da kopyalanır, aksi halde snapshot ile
// canlı cache aynı belleği paylaşır ve rollback sessizce bozulur.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = append(json.RawMessage(nil), m.Content...)
	}
	if m.ThreadID != nil {
		id := *m.ThreadID
		out.ThreadID = &id
	}
	if m.Attachment != nil {
		ref := *m.Attachment
		out.Attachment = &ref
	}
	return out
}

// IsOptimistic, mesajın henüz sunucu onayı almamış geçici bir kayıt olup olmadığını döner.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticIDPrefix)
}

// IsReply, mesajın bir thread yanıtı olup olmadığını döner.
func (m Message) IsReply() bool {
	return m.ThreadID != nil && *m.ThreadID != ""
}

// ChannelFeedPage, kanal akışının bir sayfası.
// Items en yeniden eskiye sıralıdır; NextCursor boşsa daha eski sayfa yoktur.
type ChannelFeedPage struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// ThreadList, thread okuma endpoint'inin yanıtı.
type ThreadList struct {
	Parent   Message   `json:"parent"`
	Messages []Message `json:"messages"`
}

// AttachmentInput, mesaj oluşturma isteğindeki ek referansı.
// ImageURL geriye dönük uyumluluk için tutulur; asıl referans FileID'dir.
type AttachmentInput struct {
	FileID   string `json:"fileId,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// CreateMessageRequest, yeni mesaj (veya thread yanıtı) gönderme isteği.
type CreateMessageRequest struct {
	ChannelID  string           `json:"channelId"`
	Content    json.RawMessage  `json:"content"`
	Attachment *AttachmentInput `json:"attachmentRef,omitempty"`
	ThreadID   *string          `json:"threadId,omitempty"`
}

// Validate, isteğin optimistic apply'dan ÖNCE geçerli olup olmadığını kontrol eder.
// Burada dönen hata transaction hiç başlamadan kullanıcıya gösterilir.
//
// Kurallar:
//   - channelId zorunlu
//   - content varsa geçerli JSON olmalı ve 64KB'ı aşmamalı
//   - content boşsa en azından bir ek (fileId veya imageUrl) olmalı
//   - threadId verildiyse boş string olamaz
func (r *CreateMessageRequest) Validate() error {
	r.ChannelID = strings.TrimSpace(r.ChannelID)
	if r.ChannelID == "" {
		return fmt.Errorf("channelId is required")
	}

	trimmed := bytes.TrimSpace(r.Content)
	if len(trimmed) > MaxContentBytes {
		return fmt.Errorf("message content must be at most %d bytes", MaxContentBytes)
	}
	if len(trimmed) > 0 && !json.Valid(trimmed) {
		return fmt.Errorf("message content must be a valid JSON document")
	}

	if r.Attachment != nil && r.Attachment.FileID == "" && r.Attachment.ImageURL == "" {
		r.Attachment = nil
	}
	if len(trimmed) == 0 && r.Attachment == nil {
		return fmt.Errorf("message content or attachment is required")
	}

	if r.ThreadID != nil && strings.TrimSpace(*r.ThreadID) == "" {
		return fmt.Errorf("threadId must not be empty when set")
	}
	return nil
}
