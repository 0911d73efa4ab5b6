// Package optimistic, client tarafı optimistic mutation motorunu barındırır.
//
// Akış:
//
//	tx := optimistic.NewTransaction(store, ledger, log)
//	tx.Begin(cache.ChannelFeed(ch), cache.ThreadFeed(root))  // snapshot
//	tx.Attach(propagator.EffectsFor(draft)...)               // fan-out listesi
//	tx.ApplyOptimistic(cache.ThreadFeed(root), draft)        // UI hemen görür
//	msg, err := api.CreateMessage(ctx, req)                  // tek bekleme noktası
//	if err != nil { tx.Rollback() } else { tx.Commit(scope, draft.ID, *msg) }
//
// Durum makinesi: Idle → Pending → Committed | RolledBack. Terminal durumlardan
// çıkış yoktur; Commit ve Rollback idempotent'tir.
package optimistic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/akinalp/chatflow/pkg/cache"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/metrics"
)

// TxState, transaction durumu.
type TxState string

const (
	TxIdle       TxState = "idle"
	TxPending    TxState = "pending"
	TxCommitted  TxState = "committed"
	TxRolledBack TxState = "rolledBack"
)

var (
	// ErrInvalidState, çağrı mevcut durumda geçersiz (ör: Begin iki kez).
	ErrInvalidState = errors.New("optimistic: invalid transaction state")
	// ErrScopeNotCaptured, Begin'de snapshot'ı alınmamış bir scope'a yazma denemesi.
	ErrScopeNotCaptured = errors.New("optimistic: scope not captured at begin")
)

// Snapshot, transaction başında alınan değişmez derin kopya.
// Sadece commit/rollback'e kadar tutulur, transaction'lar arasında paylaşılmaz.
type Snapshot[T cache.Entity[T]] struct {
	order  []cache.Scope
	scopes map[cache.Scope]cache.ScopeState[T]
}

// Scopes, snapshot'taki scope'ları Begin'e verildiği sırada döner.
func (s *Snapshot[T]) Scopes() []cache.Scope {
	out := make([]cache.Scope, len(s.order))
	copy(out, s.order)
	return out
}

// Pages, scope'un snapshot anındaki sayfalarının kopyasını döner.
func (s *Snapshot[T]) Pages(scope cache.Scope) ([]cache.Page[T], bool) {
	st, ok := s.scopes[scope]
	if !ok || !st.Present {
		return nil, false
	}
	// Store.Capture zaten kopyaladı; çağıran snapshot'ı değiştiremesin diye tekrar kopyalıyoruz.
	tmp := cache.NewStore[T]()
	tmp.SetPages(scope, st.Pages)
	return tmp.Pages(scope)
}

func (s *Snapshot[T]) has(scope cache.Scope) bool {
	_, ok := s.scopes[scope]
	return ok
}

type effectRun[T any] struct {
	effect  Effect[T]
	touched int
}

// Transaction, tek bir kullanıcı aksiyonunun optimistic yazmasını yönetir.
//
// Reentrant değildir: aynı aksiyondan gelen ikinci ApplyOptimistic aynı
// transaction'ı kullanmalı (ikinci kez eklemez). Farklı aksiyonlar kendi
// transaction'larını ve kendi tempID'lerini alır, aralarında kilit yoktur,
// çünkü her transaction sadece kendi oluşturduğu satırı hedefler.
type Transaction[T cache.Entity[T]] struct {
	mu     sync.Mutex
	store  *cache.Store[T]
	ledger *Ledger
	log    *logger.Logger

	state    TxState
	snapshot *Snapshot[T]
	// expected: scope başına "sadece biz yazdıysak" beklenen revision.
	// Rollback'te mevcut revision buna eşitse snapshot güvenle geri yüklenir.
	expected map[cache.Scope]uint64

	primary      cache.Scope
	tempID       string
	applied      bool
	effects      []*effectRun[T]
	commitResult bool
	abandoned    bool
}

// NewTransaction, Idle durumda yeni bir transaction oluşturur.
func NewTransaction[T cache.Entity[T]](store *cache.Store[T], ledger *Ledger, log *logger.Logger) *Transaction[T] {
	return &Transaction[T]{
		store:    store,
		ledger:   ledger,
		log:      log.Named("txn"),
		state:    TxIdle,
		expected: make(map[cache.Scope]uint64),
	}
}

// State, mevcut durumu döner.
func (t *Transaction[T]) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// TempID, optimistic entity'nin geçici ID'si (ApplyOptimistic'ten sonra dolar).
func (t *Transaction[T]) TempID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tempID
}

// Abandoned, transaction'ın dokunduğu bir scope'un araya giren bir refetch ile
// tamamen değiştirilip değiştirilmediğini döner (commit/rollback sonrası anlamlı).
func (t *Transaction[T]) Abandoned() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abandoned
}

// Begin, dokunulacak tüm scope'ların snapshot'ını tek kilit altında alır ve
// Pending durumuna geçer. Herhangi bir optimistic yazmadan önce çağrılmalıdır.
func (t *Transaction[T]) Begin(scopes ...cache.Scope) (*Snapshot[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxIdle {
		return nil, fmt.Errorf("%w: begin called in state %s", ErrInvalidState, t.state)
	}

	order := make([]cache.Scope, 0, len(scopes))
	seen := make(map[cache.Scope]bool, len(scopes))
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			order = append(order, s)
		}
	}

	captured := t.store.Capture(order...)
	for scope, st := range captured {
		t.expected[scope] = st.Revision
	}
	t.snapshot = &Snapshot[T]{order: order, scopes: captured}
	t.state = TxPending
	return t.snapshot, nil
}

// Attach, transaction'a fan-out effect'leri ekler. ApplyOptimistic'ten önce çağrılır.
func (t *Transaction[T]) Attach(effects ...Effect[T]) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxPending || t.applied {
		return fmt.Errorf("%w: effects must be attached before apply", ErrInvalidState)
	}
	for _, e := range effects {
		if !t.snapshot.has(e.Scope) {
			return fmt.Errorf("%w: %s (effect %s)", ErrScopeNotCaptured, e.Scope, e.Name)
		}
		t.effects = append(t.effects, &effectRun[T]{effect: e})
	}
	return nil
}

// ApplyOptimistic, entity'yi scope'un başına ekler ve eklenmiş effect'leri
// aynı atomik adımda uygular.
//
// Aynı tempID ile ikinci çağrı no-op'tur. Ledger'ın daha önce gördüğü bir
// tempID reddedilir.
func (t *Transaction[T]) ApplyOptimistic(scope cache.Scope, entity T) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxPending {
		return fmt.Errorf("%w: apply called in state %s", ErrInvalidState, t.state)
	}
	id := entity.EntityID()
	if t.applied {
		if id == t.tempID {
			return nil
		}
		return fmt.Errorf("%w: transaction already applied %q", ErrInvalidState, t.tempID)
	}
	if !t.snapshot.has(scope) {
		return fmt.Errorf("%w: %s", ErrScopeNotCaptured, scope)
	}
	if err := t.ledger.Open(id); err != nil {
		return err
	}

	t.primary = scope
	t.tempID = id
	// applied, yazmadan önce işaretlenir: yarıda kalan bir apply da rollback'te telafi edilir.
	t.applied = true

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("optimistic apply failed: %v", r)
		}
	}()

	t.store.Atomically(func(w *cache.Writer[T]) {
		t.recaptureRefetched(w)

		w.InsertAtHead(scope, entity)
		t.expected[scope]++

		for _, run := range t.effects {
			e := run.effect
			n := w.MapEntities(e.Scope, e.Match, e.Apply)
			if n == 0 {
				metrics.PropagationSkips.Inc()
				t.log.Debug("propagation skipped, target not cached", "effect", e.Name, "scope", e.Scope.String())
				continue
			}
			run.touched = n
			t.expected[e.Scope]++
		}
	})
	return nil
}

// recaptureRefetched, Begin ile ApplyOptimistic arasında refetch edilmiş
// (generation'ı değişmiş) scope'ların snapshot'ını yeniden alır; Rollback
// taze veriye yazılan geçici satırı da geri alabilmelidir. Begin'in döndüğü
// Snapshot değişmez. Store kilidi altında çağrılır.
func (t *Transaction[T]) recaptureRefetched(w *cache.Writer[T]) {
	var stale []cache.Scope
	for _, s := range t.snapshot.order {
		if w.Generation(s) != t.snapshot.scopes[s].Generation {
			stale = append(stale, s)
		}
	}
	if len(stale) == 0 {
		return
	}

	scopes := make(map[cache.Scope]cache.ScopeState[T], len(t.snapshot.scopes))
	for s, st := range t.snapshot.scopes {
		scopes[s] = st
	}
	for s, st := range w.Capture(stale...) {
		scopes[s] = st
		t.expected[s] = st.Revision
		t.log.Debug("scope refetched before apply, snapshot re-captured", "scope", s.String())
	}
	t.snapshot = &Snapshot[T]{order: t.snapshot.order, scopes: scopes}
}

// Commit, optimistic entity'yi sunucunun döndüğü entity ile AYNI pozisyonda
// değiştirir ve Committed durumuna geçer.
//
// Dönüş değeri ReplaceByID sonucudur: false ise optimistic satır araya giren
// bir refetch ile düşmüştür (MutationConflict). Yazma sunucuda başarılı
// olduğu için rollback yapılmaz; tam refetch gerekip gerekmediğine çağıran
// karar verir. Commit'i tekrar çağırmak state'i değiştirmez ve ilk sonucu döner.
func (t *Transaction[T]) Commit(scope cache.Scope, tempID string, real T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TxCommitted:
		return t.commitResult
	case TxPending:
	default:
		return false
	}

	var ok bool
	t.store.Atomically(func(w *cache.Writer[T]) {
		if w.Generation(scope) != t.snapshot.scopes[scope].Generation {
			t.abandoned = true
		}
		ok = w.ReplaceByID(scope, tempID, real)
	})

	t.ledger.Commit(tempID, real.EntityID())
	t.state = TxCommitted
	t.commitResult = ok
	t.snapshot = nil

	switch {
	case ok:
		metrics.Transactions.WithLabelValues(metrics.OutcomeCommitted).Inc()
	case t.abandoned:
		metrics.Transactions.WithLabelValues(metrics.OutcomeAbandoned).Inc()
		t.log.Info("commit after refetch, optimistic row gone", "scope", scope.String(), "temp_id", tempID)
	default:
		metrics.Transactions.WithLabelValues(metrics.OutcomeConflict).Inc()
		t.log.Warn("commit found no optimistic row", "scope", scope.String(), "temp_id", tempID)
	}
	return ok
}

// Rollback, transaction'ın dokunduğu her scope'u tek atomik adımda geri alır.
//
// Scope başına karar:
//   - generation değişmiş (refetch geldi): atla, taze veri zaten doğru
//   - Begin'den beri sadece bu transaction yazmış: snapshot'ı olduğu gibi geri yükle
//   - araya başka yazıcı girmiş: sadece kendi etkilerimizi telafi et
//     (geçici satırı sil, effect'lerin Revert'ini çalıştır)
//
// Apply yarıda kalmış olsa bile güvenle çağrılabilir. Terminal durumda no-op.
func (t *Transaction[T]) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TxRolledBack, TxCommitted:
		return nil
	case TxIdle:
		t.state = TxRolledBack
		return nil
	}

	t.store.Atomically(func(w *cache.Writer[T]) {
		for _, scope := range t.snapshot.order {
			snap := t.snapshot.scopes[scope]

			if w.Generation(scope) != snap.Generation {
				t.abandoned = true
				continue
			}
			if w.Revision(scope) == t.expected[scope] {
				w.Restore(scope, snap.Pages, snap.Present)
				continue
			}

			if t.applied && scope == t.primary {
				w.RemoveByID(scope, t.tempID)
			}
			for _, run := range t.effects {
				if run.touched > 0 && run.effect.Scope == scope {
					w.MapEntities(scope, run.effect.Match, run.effect.Revert)
				}
			}
		}
	})

	if t.applied {
		t.ledger.RollBack(t.tempID)
	}
	t.state = TxRolledBack
	t.snapshot = nil

	if t.abandoned {
		metrics.Transactions.WithLabelValues(metrics.OutcomeAbandoned).Inc()
	} else {
		metrics.Transactions.WithLabelValues(metrics.OutcomeRolledBack).Inc()
	}
	return nil
}
