// Package cache: client tarafı in-memory cache yapıları.
//
// Store, birbirinden bağımsız fetch edilen view'ların (kanal akışı, thread
// yanıtları) sayfalı entity listelerini tutar. Tüm optimistic mutation ve
// rollback işlemleri yalnızca Store'un API'si üzerinden yapılır; iç slice'lara
// dışarıdan erişilemez. Böylece "head'e ekle", "yerinde değiştir" gibi
// invariant'lar tek noktada korunur.
//
// Her scope iki sayaç taşır:
//   - revision: state'i değiştiren HER yazmada artar
//   - generation: sadece dışarıdan gelen tam değiştirmede (refetch) artar
//
// Transaction'lar bu sayaçlarla araya başka bir yazıcının girip girmediğini
// ve scope'un daha taze veriyle tamamen değiştirilip değiştirilmediğini anlar.
package cache

import (
	"fmt"
	"sync"
)

// Kind, bir view türü.
type Kind string

const (
	KindChannelFeed Kind = "channel-feed"
	KindThreadFeed  Kind = "thread-feed"
)

// Scope, bağımsız fetch edilen tek bir view'ın anahtarı: (kind, id).
type Scope struct {
	Kind Kind
	ID   string
}

// ChannelFeed, bir kanalın ana akışının scope'u.
func ChannelFeed(channelID string) Scope {
	return Scope{Kind: KindChannelFeed, ID: channelID}
}

// ThreadFeed, bir thread'in yanıt listesinin scope'u (ID = thread root mesaj ID'si).
func ThreadFeed(rootID string) Scope {
	return Scope{Kind: KindThreadFeed, ID: rootID}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Entity, Store'da tutulabilecek tiplerin sağlaması gereken kısıt.
// Clone derin kopya dönmelidir, snapshot'lar buna güvenir.
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Page, sıralı entity listesi + opsiyonel devam cursor'ı.
// Sıralama en yeniden en eskiye doğrudur.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// ScopeState, bir scope'un belirli bir andaki değişmez görüntüsü.
// Present=false "henüz fetch edilmedi" demektir; "fetch edildi ama boş"
// durumundan farklıdır.
type ScopeState[T any] struct {
	Pages      []Page[T]
	Present    bool
	Revision   uint64
	Generation uint64
}

type scopeState[T any] struct {
	pages   []Page[T]
	present bool
	rev     uint64
	gen     uint64
}

// Store, generic, scope bazlı, sayfalı entity store'u.
//
// Her public metod kendi kilidini alır ve sonuç bir sonraki okumada hemen
// görünür. Birden fazla scope'a atomik yazmak için Atomically kullanılır.
type Store[T Entity[T]] struct {
	mu     sync.Mutex
	scopes map[Scope]*scopeState[T]
}

// NewStore, boş bir Store oluşturur.
func NewStore[T Entity[T]]() *Store[T] {
	return &Store[T]{scopes: make(map[Scope]*scopeState[T])}
}

// Atomically, fn'i Store kilidi altında çalıştırır.
//
// fn içindeki tüm yazmalar diğer okuyuculara tek seferde görünür. fn içinde
// Store'un kendi metodları çağrılmamalıdır (deadlock), sadece verilen
// Writer kullanılır. Writer fn döndükten sonra kullanılmamalıdır.
func (s *Store[T]) Atomically(fn func(w *Writer[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Writer[T]{s: s})
}

// Pages, scope'un mevcut sayfalarının kopyasını döner.
// İkinci dönüş değeri false ise scope henüz fetch edilmemiştir.
func (s *Store[T]) Pages(scope Scope) ([]Page[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().Pages(scope)
}

// SetPages, scope'u tamamen değiştirir (fetch kaynaklı güncelleme).
func (s *Store[T]) SetPages(scope Scope, pages []Page[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w().SetPages(scope, pages)
}

// AppendPage, daha eski bir sayfayı sona ekler (infinite scroll).
func (s *Store[T]) AppendPage(scope Scope, page Page[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w().AppendPage(scope, page)
}

// Evict, scope'u "hiç fetch edilmemiş" durumuna döndürür.
func (s *Store[T]) Evict(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w().Evict(scope)
}

// InsertAtHead, entity'yi ilk sayfanın başına ekler.
func (s *Store[T]) InsertAtHead(scope Scope, entity T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w().InsertAtHead(scope, entity)
}

// ReplaceByID, id'si eşleşen ilk entity'yi yerinde değiştirir.
func (s *Store[T]) ReplaceByID(scope Scope, id string, entity T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().ReplaceByID(scope, id, entity)
}

// RemoveByID, id'si eşleşen ilk entity'yi siler.
func (s *Store[T]) RemoveByID(scope Scope, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().RemoveByID(scope, id)
}

// MapEntities, predicate'e uyan her entity'ye transform uygular.
func (s *Store[T]) MapEntities(scope Scope, predicate func(T) bool, transform func(T) T) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().MapEntities(scope, predicate, transform)
}

// Contains, scope'ta verilen id'ye sahip bir entity olup olmadığını döner.
func (s *Store[T]) Contains(scope Scope, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().Contains(scope, id)
}

// Capture, verilen scope'ların derin kopyasını sayaçlarıyla birlikte tek
// kilit altında alır.
func (s *Store[T]) Capture(scopes ...Scope) map[Scope]ScopeState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().Capture(scopes...)
}

// Revision, scope'un yazma sayacını döner.
func (s *Store[T]) Revision(scope Scope) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().Revision(scope)
}

// Generation, scope'un dış tam-değiştirme sayacını döner.
func (s *Store[T]) Generation(scope Scope) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w().Generation(scope)
}

func (s *Store[T]) w() *Writer[T] {
	return &Writer[T]{s: s}
}

// Writer, Store kilidi zaten alınmışken kullanılan yazma/okuma API'si.
// Sadece Atomically içinde elde edilir.
type Writer[T Entity[T]] struct {
	s *Store[T]
}

func (w *Writer[T]) state(scope Scope) *scopeState[T] {
	st, ok := w.s.scopes[scope]
	if !ok {
		st = &scopeState[T]{}
		w.s.scopes[scope] = st
	}
	return st
}

// Pages: bkz. Store.Pages.
func (w *Writer[T]) Pages(scope Scope) ([]Page[T], bool) {
	st, ok := w.s.scopes[scope]
	if !ok || !st.present {
		return nil, false
	}
	return clonePages(st.pages), true
}

// SetPages: bkz. Store.SetPages. Generation'ı artırır: bu scope'u hedefleyen
// bekleyen transaction'lar artık "terk edilmiş" sayılır.
func (w *Writer[T]) SetPages(scope Scope, pages []Page[T]) {
	st := w.state(scope)
	st.pages = clonePages(pages)
	if st.pages == nil {
		st.pages = []Page[T]{}
	}
	st.present = true
	st.rev++
	st.gen++
}

// Restore, scope'u bir snapshot'a geri döndürür. SetPages'ten farkı:
// generation'a dokunmaz, çünkü bu bir refetch değil rollback'tir.
func (w *Writer[T]) Restore(scope Scope, pages []Page[T], present bool) {
	st := w.state(scope)
	if present {
		st.pages = clonePages(pages)
		if st.pages == nil {
			st.pages = []Page[T]{}
		}
	} else {
		st.pages = nil
	}
	st.present = present
	st.rev++
}

// AppendPage: bkz. Store.AppendPage.
func (w *Writer[T]) AppendPage(scope Scope, page Page[T]) {
	st := w.state(scope)
	st.pages = append(st.pages, clonePage(page))
	st.present = true
	st.rev++
}

// Evict: bkz. Store.Evict.
func (w *Writer[T]) Evict(scope Scope) {
	st := w.state(scope)
	st.pages = nil
	st.present = false
	st.rev++
	st.gen++
}

// InsertAtHead, entity'yi ilk sayfanın en başına ekler. Scope'ta hiç sayfa
// yoksa cursor'sız tek sayfalık bir liste oluşturur ("henüz gerçekten
// sayfalanmadı" durumu).
func (w *Writer[T]) InsertAtHead(scope Scope, entity T) {
	st := w.state(scope)
	item := entity.Clone()
	if len(st.pages) == 0 {
		st.pages = []Page[T]{{Items: []T{item}}}
	} else {
		first := st.pages[0]
		items := make([]T, 0, len(first.Items)+1)
		items = append(items, item)
		items = append(items, first.Items...)
		st.pages[0] = Page[T]{Items: items, NextCursor: first.NextCursor}
	}
	st.present = true
	st.rev++
}

// ReplaceByID, tüm sayfalarda id'si eşleşen İLK entity'yi bulur ve aynı
// pozisyonda değiştirir. Eşleşme yoksa false döner, bu bir hata değildir,
// hedef araya giren bir refetch ile düşmüş olabilir.
func (w *Writer[T]) ReplaceByID(scope Scope, id string, entity T) bool {
	st, ok := w.s.scopes[scope]
	if !ok || !st.present {
		return false
	}
	for p := range st.pages {
		for i := range st.pages[p].Items {
			if st.pages[p].Items[i].EntityID() == id {
				st.pages[p].Items[i] = entity.Clone()
				st.rev++
				return true
			}
		}
	}
	return false
}

// RemoveByID, id'si eşleşen ilk entity'yi siler. Sayfa boşalsa bile
// sayfa yapısı korunur (cursor'lar kaymasın diye).
func (w *Writer[T]) RemoveByID(scope Scope, id string) bool {
	st, ok := w.s.scopes[scope]
	if !ok || !st.present {
		return false
	}
	for p := range st.pages {
		items := st.pages[p].Items
		for i := range items {
			if items[i].EntityID() == id {
				next := make([]T, 0, len(items)-1)
				next = append(next, items[:i]...)
				next = append(next, items[i+1:]...)
				st.pages[p].Items = next
				st.rev++
				return true
			}
		}
	}
	return false
}

// MapEntities, predicate'e uyan her entity'yi transform sonucu ile değiştirir
// ve değişen entity sayısını döner. Sayaç artırımı (repliesCount) gibi
// türetilmiş alan güncellemeleri için kullanılır.
func (w *Writer[T]) MapEntities(scope Scope, predicate func(T) bool, transform func(T) T) int {
	st, ok := w.s.scopes[scope]
	if !ok || !st.present {
		return 0
	}
	n := 0
	for p := range st.pages {
		for i, item := range st.pages[p].Items {
			if predicate(item) {
				st.pages[p].Items[i] = transform(item.Clone())
				n++
			}
		}
	}
	if n > 0 {
		st.rev++
	}
	return n
}

// Contains: bkz. Store.Contains.
func (w *Writer[T]) Contains(scope Scope, id string) bool {
	st, ok := w.s.scopes[scope]
	if !ok || !st.present {
		return false
	}
	for _, page := range st.pages {
		for _, item := range page.Items {
			if item.EntityID() == id {
				return true
			}
		}
	}
	return false
}

// Capture: bkz. Store.Capture.
func (w *Writer[T]) Capture(scopes ...Scope) map[Scope]ScopeState[T] {
	out := make(map[Scope]ScopeState[T], len(scopes))
	for _, scope := range scopes {
		var cs ScopeState[T]
		if st, ok := w.s.scopes[scope]; ok {
			cs.Present = st.present
			cs.Revision = st.rev
			cs.Generation = st.gen
			if st.present {
				cs.Pages = clonePages(st.pages)
			}
		}
		out[scope] = cs
	}
	return out
}

// Revision: bkz. Store.Revision.
func (w *Writer[T]) Revision(scope Scope) uint64 {
	if st, ok := w.s.scopes[scope]; ok {
		return st.rev
	}
	return 0
}

// Generation: bkz. Store.Generation.
func (w *Writer[T]) Generation(scope Scope) uint64 {
	if st, ok := w.s.scopes[scope]; ok {
		return st.gen
	}
	return 0
}

func clonePage[T Entity[T]](p Page[T]) Page[T] {
	items := make([]T, len(p.Items))
	for i, item := range p.Items {
		items[i] = item.Clone()
	}
	return Page[T]{Items: items, NextCursor: p.NextCursor}
}

func clonePages[T Entity[T]](pages []Page[T]) []Page[T] {
	if pages == nil {
		return nil
	}
	out := make([]Page[T], len(pages))
	for i, p := range pages {
		out[i] = clonePage(p)
	}
	return out
}
