package optimistic

import (
	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg/cache"
)

// Effect, bir mutation'ın BAŞKA bir view'a yansıyan yan etkisi: (scope, patch).
//
// Apply optimistic uygulama sırasında, Revert rollback sırasında çalışır.
// Transaction, Apply'ın kaç entity'ye dokunduğunu kaydeder; dokunmadıysa
// Revert de çalıştırılmaz. Böylece her artırımın tam olarak bir eşleşen
// azaltımı olur ve başarı/başarısızlık döngüleri sayacı kaydırmaz.
type Effect[T any] struct {
	Name   string
	Scope  cache.Scope
	Match  func(T) bool
	Apply  func(T) T
	Revert func(T) T
}

// Propagator, bir mesaj için hangi yan etkilerin gerektiğini belirler.
// Sayfalara sahip olmaz; sadece transaction'a eklenecek fan-out listesini üretir.
type Propagator struct{}

// NewPropagator, constructor.
func NewPropagator() *Propagator {
	return &Propagator{}
}

// EffectsFor, mesajın fan-out listesini döner.
// Thread yanıtı → kanal akışındaki root mesajın repliesCount'u. Diğerleri → yok.
func (p *Propagator) EffectsFor(msg models.Message) []Effect[models.Message] {
	if !msg.IsReply() {
		return nil
	}
	return []Effect[models.Message]{ReplyCounter(msg.ChannelID, *msg.ThreadID)}
}

// ReplyCounter, kanal akışındaki thread root'unun repliesCount'unu 1 artıran
// (revert'te 1 azaltan) effect'i döner.
//
// Root cache'te yoksa (scroll ile düşmüş ya da akış hiç fetch edilmemiş)
// effect sessizce atlanır; sayaç bir sonraki tam refetch'te düzelir.
func ReplyCounter(channelID, rootID string) Effect[models.Message] {
	return Effect[models.Message]{
		Name:  "replies_count",
		Scope: cache.ChannelFeed(channelID),
		Match: func(m models.Message) bool {
			return m.ID == rootID
		},
		Apply: func(m models.Message) models.Message {
			m.RepliesCount++
			return m
		},
		Revert: func(m models.Message) models.Message {
			if m.RepliesCount > 0 {
				m.RepliesCount--
			}
			return m
		},
	}
}
