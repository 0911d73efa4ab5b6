package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg/cache"
	"github.com/akinalp/chatflow/pkg/logger"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Sunucudan hiçbir şey gelmeden beklenecek maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// heartbeatInterval: Client'ın heartbeat gönderme sıklığı.
	heartbeatInterval = 30 * time.Second

	// maxMessageSize: Sunucudan kabul edilen maksimum event boyutu (byte).
	// Mesaj içeriği 64KB'a kadar olabildiği için zarfla birlikte biraz pay bırakılır.
	maxMessageSize = 96 << 10

	// seenTTL: Aynı mesaj ID'si için tekrar gelen create event'lerinin yok sayıldığı süre.
	seenTTL = 10 * time.Minute
)

// Listener, canlı akış bağlantısı.
//
// Her bağlantı için iki goroutine çalışır:
// - Run (okuma döngüsü): event'leri okur ve store'a uygular
// - heartbeatLoop: 30sn'de bir heartbeat yazar
//
// gorilla/websocket aynı anda sadece bir okuma ve bir yazma destekler;
// yazmalar writeMu ile korunur.
type Listener struct {
	store  *cache.Store[models.Message]
	selfID string
	log    *logger.Logger
	seen   *cache.TTLCache[string, struct{}]
	onGap  func()

	mu      sync.Mutex
	lastSeq int64

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewListener, store'a yazan bir listener oluşturur.
// selfID: yerel kullanıcının ID'si; kendi mesajlarımızın create event'leri yok sayılır.
func NewListener(store *cache.Store[models.Message], selfID string, log *logger.Logger) *Listener {
	return &Listener{
		store:  store,
		selfID: selfID,
		log:    log.Named("ws"),
		seen:   cache.NewTTL[string, struct{}](seenTTL, time.Minute),
	}
}

// OnGap, seq atlaması tespit edildiğinde çağrılacak fonksiyonu ayarlar.
// Tipik kullanım: görünen scope'ları yeniden çekmek.
func (l *Listener) OnGap(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onGap = fn
}

// Dial, sunucuya bağlanır. Token query parameter olarak gönderilir:
//
//	ws://server/ws?token=JWT_TOKEN
//
// Tarayıcılar WebSocket'te header gönderemediği için sunucu token'ı query'den bekler.
func (l *Listener) Dial(ctx context.Context, rawURL, token string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid ws url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("ws dial rejected: %s", resp.Status)
		}
		return fmt.Errorf("ws dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	l.mu.Lock()
	l.conn = conn
	l.lastSeq = 0 // yeni bağlantıda sunucu seq'i sıfırdan başlatır
	l.mu.Unlock()
	return nil
}

// Run, bağlantı kapanana veya ctx iptal edilene kadar event okur.
// ctx iptali normal bir kapanıştır ve nil döner.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("ws: Run called before Dial")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go l.heartbeatLoop(runCtx)
	go func() {
		<-runCtx.Done()
		l.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.log.Warn("unexpected close", "error", err)
			}
			return err
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			l.log.Warn("invalid event", "error", err)
			continue
		}
		l.Handle(event)
	}
}

// Close, kaynakları bırakır. Run'ın ctx'i iptal edildiğinde bağlantı zaten kapanır.
func (l *Listener) Close() {
	l.seen.Close()
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Handle, tek bir event'i store'a uygular. Run tarafından çağrılır;
// bağlantı olmadan da (ör: testlerde) kullanılabilir.
func (l *Listener) Handle(event Event) {
	if !l.acceptSeq(event.Seq) {
		return
	}

	switch event.Op {
	case OpMessageCreate:
		var msg models.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			l.log.Warn("invalid message_create payload", "error", err)
			return
		}
		l.applyCreate(msg)

	case OpMessageUpdate:
		var msg models.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			l.log.Warn("invalid message_update payload", "error", err)
			return
		}
		l.applyUpdate(msg)

	case OpMessageDelete:
		var data MessageDeleteData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			l.log.Warn("invalid message_delete payload", "error", err)
			return
		}
		l.applyDelete(data)

	case OpHeartbeatAck:
		// Okuma deadline'ı her mesajda yenilendiği için ek iş yok.
	}
}

// acceptSeq, tekrar gelen event'leri eler ve kayıpları raporlar.
// Seq taşımayan event'ler her zaman kabul edilir.
func (l *Listener) acceptSeq(seq int64) bool {
	if seq == 0 {
		return true
	}

	l.mu.Lock()
	last := l.lastSeq
	if seq <= last {
		l.mu.Unlock()
		return false
	}
	l.lastSeq = seq
	onGap := l.onGap
	l.mu.Unlock()

	if last > 0 && seq > last+1 {
		l.log.Warn("event gap detected", "last_seq", last, "seq", seq)
		if onGap != nil {
			onGap()
		}
	}
	return true
}

func scopeOf(channelID string, threadID *string) cache.Scope {
	if threadID != nil && *threadID != "" {
		return cache.ThreadFeed(*threadID)
	}
	return cache.ChannelFeed(channelID)
}

// applyCreate, başka bir kullanıcının mesajını ekler.
//
// Sadece zaten fetch edilmiş scope'lara eklenir; hiç açılmamış bir view için
// sahte sayfa üretilmez. Yanıtlarda root'un sayacı her durumda artar
// (thread view cache'te olmasa bile kanal akışındaki sayaç doğru kalmalı).
func (l *Listener) applyCreate(msg models.Message) {
	if msg.ID == "" || msg.AuthorID == l.selfID {
		return
	}
	if _, dup := l.seen.Get(msg.ID); dup {
		return
	}
	l.seen.Set(msg.ID, struct{}{})

	scope := scopeOf(msg.ChannelID, msg.ThreadID)
	l.store.Atomically(func(w *cache.Writer[models.Message]) {
		if _, present := w.Pages(scope); present && !w.Contains(scope, msg.ID) {
			w.InsertAtHead(scope, msg)
		}
		if msg.IsReply() {
			rootID := *msg.ThreadID
			w.MapEntities(cache.ChannelFeed(msg.ChannelID),
				func(m models.Message) bool { return m.ID == rootID },
				func(m models.Message) models.Message {
					m.RepliesCount++
					return m
				},
			)
		}
	})
}

// applyUpdate, düzenlenen mesajı bulunduğu view'larda yerinde değiştirir.
// Kanal akışındaki kopyanın repliesCount'u korunur; sayaç bu view'a aittir.
func (l *Listener) applyUpdate(msg models.Message) {
	scopes := []cache.Scope{cache.ChannelFeed(msg.ChannelID)}
	if msg.IsReply() {
		scopes = append(scopes, cache.ThreadFeed(*msg.ThreadID))
	}
	l.store.Atomically(func(w *cache.Writer[models.Message]) {
		for _, scope := range scopes {
			w.MapEntities(scope,
				func(m models.Message) bool { return m.ID == msg.ID },
				func(m models.Message) models.Message {
					next := msg.Clone()
					next.RepliesCount = m.RepliesCount
					return next
				},
			)
		}
	})
}

// applyDelete, mesajı kaldırır; yanıtsa root'un sayacını azaltır.
func (l *Listener) applyDelete(data MessageDeleteData) {
	scope := scopeOf(data.ChannelID, data.ThreadID)
	l.store.Atomically(func(w *cache.Writer[models.Message]) {
		w.RemoveByID(scope, data.ID)
		if data.ThreadID != nil && *data.ThreadID != "" {
			rootID := *data.ThreadID
			w.MapEntities(cache.ChannelFeed(data.ChannelID),
				func(m models.Message) bool { return m.ID == rootID },
				func(m models.Message) models.Message {
					if m.RepliesCount > 0 {
						m.RepliesCount--
					}
					return m
				},
			)
		}
	})
}

func (l *Listener) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	payload, _ := json.Marshal(Event{Op: OpHeartbeat})
	for {
		select {
		case <-ticker.C:
			if err := l.writeMessage(websocket.TextMessage, payload); err != nil {
				l.log.Debug("heartbeat write failed", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar (mutex ile korunur).
func (l *Listener) writeMessage(messageType int, data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("ws: not connected")
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}
