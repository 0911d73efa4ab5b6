package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/cache"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/optimistic"
)

// MessageAPI, sync servisinin ihtiyaç duyduğu API alt kümesi (client.Client bunu sağlar).
type MessageAPI interface {
	CreateMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
	ListChannelFeed(ctx context.Context, channelID, cursor string) (*models.ChannelFeedPage, error)
	ListThread(ctx context.Context, messageID string) (*models.ThreadList, error)
}

// MessageSyncService, client cache'ini sunucuyla senkron tutar ve mesaj
// gönderimini optimistic transaction'larla yürütür.
type MessageSyncService interface {
	// LoadChannelFeed, kanal akışının en yeni sayfasını çeker ve scope'u tamamen değiştirir.
	LoadChannelFeed(ctx context.Context, channelID string) error
	// LoadOlder, son sayfanın cursor'ı ile bir eski sayfayı ekler. Daha eski sayfa yoksa false.
	LoadOlder(ctx context.Context, channelID string) (bool, error)
	// LoadThread, thread yanıtlarını çeker ve root mesajı döner.
	LoadThread(ctx context.Context, rootID string) (*models.Message, error)
	// LoadThreadView, thread ekranı için kanal akışını ve thread'i paralel çeker.
	LoadThreadView(ctx context.Context, channelID, rootID string) error
	// Send, mesajı optimistic olarak ekler, sunucuya yazar, sonra commit veya rollback yapar.
	Send(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
}

type messageSyncService struct {
	api        MessageAPI
	store      *cache.Store[models.Message]
	ledger     *optimistic.Ledger
	ids        optimistic.IDSource
	propagator *optimistic.Propagator
	author     models.Author
	log        *logger.Logger
	now        func() time.Time
}

// NewMessageSyncService, constructor.
//
// author: yerel kullanıcının anlık görüntüsü; optimistic satırlar bu bilgiyle çizilir,
// commit'te sunucunun döndüğü yazar bilgisi ile değiştirilir.
func NewMessageSyncService(
	api MessageAPI,
	store *cache.Store[models.Message],
	ledger *optimistic.Ledger,
	ids optimistic.IDSource,
	propagator *optimistic.Propagator,
	author models.Author,
	log *logger.Logger,
) MessageSyncService {
	return &messageSyncService{
		api:        api,
		store:      store,
		ledger:     ledger,
		ids:        ids,
		propagator: propagator,
		author:     author,
		log:        log.Named("sync"),
		now:        time.Now,
	}
}

func (s *messageSyncService) LoadChannelFeed(ctx context.Context, channelID string) error {
	page, err := s.api.ListChannelFeed(ctx, channelID, "")
	if err != nil {
		return fmt.Errorf("failed to load channel feed: %w", err)
	}
	s.store.SetPages(cache.ChannelFeed(channelID), []cache.Page[models.Message]{toPage(page)})
	return nil
}

func (s *messageSyncService) LoadOlder(ctx context.Context, channelID string) (bool, error) {
	scope := cache.ChannelFeed(channelID)
	pages, ok := s.store.Pages(scope)
	if !ok || len(pages) == 0 {
		if err := s.LoadChannelFeed(ctx, channelID); err != nil {
			return false, err
		}
		pages, _ = s.store.Pages(scope)
		return len(pages) > 0 && pages[len(pages)-1].NextCursor != "", nil
	}

	cursor := pages[len(pages)-1].NextCursor
	if cursor == "" {
		return false, nil
	}

	page, err := s.api.ListChannelFeed(ctx, channelID, cursor)
	if err != nil {
		return false, fmt.Errorf("failed to load older messages: %w", err)
	}
	s.store.AppendPage(scope, toPage(page))
	return page.NextCursor != "", nil
}

// LoadThread, thread-feed scope'unu tek sayfa olarak doldurur.
// Yanıtlar sunucudan en yeniden eskiye sıralı gelir.
func (s *messageSyncService) LoadThread(ctx context.Context, rootID string) (*models.Message, error) {
	list, err := s.api.ListThread(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	s.store.SetPages(cache.ThreadFeed(rootID), []cache.Page[models.Message]{{Items: list.Messages}})
	return &list.Parent, nil
}

// LoadThreadView, iki view'ı paralel çeker; ikisi de başarılı olursa
// ikisini de tek atomik adımda yazar. Biri başarısız olursa cache'e dokunulmaz.
func (s *messageSyncService) LoadThreadView(ctx context.Context, channelID, rootID string) error {
	var (
		feed   *models.ChannelFeedPage
		thread *models.ThreadList
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		feed, err = s.api.ListChannelFeed(gctx, channelID, "")
		return err
	})
	g.Go(func() error {
		var err error
		thread, err = s.api.ListThread(gctx, rootID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load thread view: %w", err)
	}

	s.store.Atomically(func(w *cache.Writer[models.Message]) {
		w.SetPages(cache.ChannelFeed(channelID), []cache.Page[models.Message]{toPage(feed)})
		w.SetPages(cache.ThreadFeed(rootID), []cache.Page[models.Message]{{Items: thread.Messages}})
	})
	return nil
}

// Send, mesaj gönderim akışı:
//
//  1. Validate: hata varsa transaction hiç başlamaz (ErrBadRequest)
//  2. Begin: birincil scope + (yanıtsa) kanal akışı snapshot'ı
//  3. ApplyOptimistic: geçici satır + repliesCount fan-out
//  4. CreateMessage: tek bekleme noktası
//  5. Commit (aynı pozisyonda değiştir) veya Rollback (tam geri al)
//
// Commit satırı bulamazsa (araya refetch girmiş) yazma sunucuda başarılı
// olduğu için hata dönülmez; scope yeniden çekilir.
func (s *messageSyncService) Send(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	tempID, err := s.ids.NewTempID()
	if err != nil {
		return nil, err
	}

	draft := s.draft(tempID, req)
	primary := cache.ChannelFeed(req.ChannelID)
	scopes := []cache.Scope{primary}
	if draft.IsReply() {
		primary = cache.ThreadFeed(*draft.ThreadID)
		scopes = []cache.Scope{primary, cache.ChannelFeed(req.ChannelID)}
	}

	tx := optimistic.NewTransaction(s.store, s.ledger, s.log)
	if _, err := tx.Begin(scopes...); err != nil {
		return nil, err
	}
	if err := tx.Attach(s.propagator.EffectsFor(draft)...); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.ApplyOptimistic(primary, draft); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	msg, err := s.api.CreateMessage(ctx, req)
	if err != nil {
		_ = tx.Rollback()
		if tx.Abandoned() {
			s.log.Info("send failed after refetch, nothing to roll back", "temp_id", tempID)
		}
		if !errors.Is(err, pkg.ErrNetwork) {
			err = fmt.Errorf("%w: %w", pkg.ErrNetwork, err)
		}
		return nil, err
	}

	// Terk edilmiş transaction'da scope zaten taze veriyle değişti; ek refetch gerekmez.
	if !tx.Commit(primary, tempID, *msg) && !tx.Abandoned() {
		s.log.Warn("optimistic row missing at commit, refetching",
			"scope", primary.String(),
			"temp_id", tempID,
			"message_id", msg.ID,
			"error", pkg.ErrMutationConflict,
		)
		s.refetch(ctx, primary)
	}
	return msg, nil
}

// draft, sunucu yanıtı gelene kadar gösterilecek geçici mesajı oluşturur.
func (s *messageSyncService) draft(tempID string, req models.CreateMessageRequest) models.Message {
	now := s.now()
	m := models.Message{
		ID:           tempID,
		Content:      req.Content,
		ChannelID:    req.ChannelID,
		ThreadID:     req.ThreadID,
		AuthorID:     s.author.ID,
		AuthorName:   s.author.Name,
		AuthorAvatar: s.author.Avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Attachment != nil {
		m.Attachment = &models.AttachmentRef{
			FileID:     req.Attachment.FileID,
			DisplayURL: req.Attachment.ImageURL,
		}
	}
	return m.Clone()
}

// refetch, conflict sonrası scope'u sunucudan yeniden çeker. Hata sadece log'lanır.
func (s *messageSyncService) refetch(ctx context.Context, scope cache.Scope) {
	var err error
	switch scope.Kind {
	case cache.KindChannelFeed:
		err = s.LoadChannelFeed(ctx, scope.ID)
	case cache.KindThreadFeed:
		_, err = s.LoadThread(ctx, scope.ID)
	}
	if err != nil {
		s.log.Warn("refetch after conflict failed", "scope", scope.String(), "error", err)
	}
}

func toPage(p *models.ChannelFeedPage) cache.Page[models.Message] {
	return cache.Page[models.Message]{Items: p.Items, NextCursor: p.NextCursor}
}
