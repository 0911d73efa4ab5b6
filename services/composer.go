package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/akinalp/chatflow/models"
)

// MessageSender, composer'ın mesaj göndermek için kullandığı alt küme
// (MessageSyncService bunu sağlar).
type MessageSender interface {
	Send(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
}

// PendingAttachment, composer'da bekleyen ek.
// PreviewURL boş olabilir; FileID varsa ek yine de gönderilir.
type PendingAttachment struct {
	FileID     string
	PreviewURL string
	Source     DisplaySource
}

// Composer, tek bir mesaj giriş kutusunun (kanal veya thread) state'i.
//
// Ek hataları composer'a özeldir: mesaj metnine ve diğer transaction'lara
// dokunmaz. Ek yüklemesi başarısız olursa composer "ek yok" durumuna döner
// ve satır içi hata gösterilir.
type Composer struct {
	mu        sync.Mutex
	sender    MessageSender
	resolver  AttachmentResolver
	channelID string
	threadID  *string

	pending   *PendingAttachment
	inlineErr error
}

// NewComposer, kanal (threadID nil) veya thread composer'ı oluşturur.
func NewComposer(sender MessageSender, resolver AttachmentResolver, channelID string, threadID *string) *Composer {
	return &Composer{
		sender:    sender,
		resolver:  resolver,
		channelID: channelID,
		threadID:  threadID,
	}
}

// Attach, phase 1 (upload) ve ardından phase 2 (resolve) çalıştırır.
//
// Phase 1 hatası: bekleyen ek temizlenir, hata hem döner hem InlineError'da tutulur.
// Phase 2 asla hata üretmez; URL bulunamazsa ek önizlemesiz eklenir.
func (c *Composer) Attach(ctx context.Context, blob Blob) error {
	res, err := c.resolver.Upload(ctx, blob)
	if err != nil {
		c.mu.Lock()
		c.pending = nil
		c.inlineErr = err
		c.mu.Unlock()
		return err
	}

	resolved := c.resolver.Resolve(ctx, res.FileID, res.FallbackURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &PendingAttachment{
		FileID:     res.FileID,
		PreviewURL: resolved.DisplayURL,
		Source:     resolved.Source,
	}
	c.inlineErr = nil
	return nil
}

// Pending, bekleyen eki döner.
func (c *Composer) Pending() (PendingAttachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingAttachment{}, false
	}
	return *c.pending, true
}

// InlineError, son ek hatasını döner (yoksa nil).
func (c *Composer) InlineError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inlineErr
}

// ClearAttachment, kullanıcı eki kaldırdığında çağrılır.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.inlineErr = nil
}

// Submit, içerik + bekleyen ek ile mesajı gönderir.
// Bekleyen ek sadece gönderim başarılı olursa temizlenir; hata durumunda
// kullanıcı aynı eki tekrar gönderebilir.
func (c *Composer) Submit(ctx context.Context, content json.RawMessage) (*models.Message, error) {
	c.mu.Lock()
	req := models.CreateMessageRequest{
		ChannelID: c.channelID,
		Content:   content,
		ThreadID:  c.threadID,
	}
	if c.pending != nil {
		req.Attachment = &models.AttachmentInput{
			FileID:   c.pending.FileID,
			ImageURL: c.pending.PreviewURL,
		}
	}
	c.mu.Unlock()

	msg, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pending = nil
	c.inlineErr = nil
	c.mu.Unlock()
	return msg, nil
}
