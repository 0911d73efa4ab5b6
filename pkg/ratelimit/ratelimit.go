// Package ratelimit: AdmissionGate: pahalı endpoint'lere (upload, signed URL
// lookup) kullanıcı bazlı token bucket ile giriş kontrolü.
//
// Tasarım:
// - Her (sınıf, kullanıcı) çifti kendi bucket'ına sahiptir; bir sınıftaki
//   yoğunluk diğerini etkilemez.
// - Bucket'lar golang.org/x/time/rate.Limiter ile tutulur: window başına N
//   token, burst = N. Token'lar sürekli dolar (sabit pencere yok).
// - Red durumunda bekleme süresi hesaplanır, HTTP katmanı Retry-After yazar.
// - Background goroutine ile uzun süre kullanılmayan bucket'lar temizlenir.
//
// Neden in-memory?
// Tek instance deploy; her istekte SQLite'a yazmak gereksiz I/O yaratır.
//
// Neden ayrı paket?
// handlers ↔ middleware arasında import cycle oluşmaması için.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/akinalp/chatflow/pkg"
	"golang.org/x/time/rate"
)

// Class, rate limit uygulanan endpoint sınıfı.
type Class string

const (
	ClassUpload    Class = "upload"
	ClassSignedURL Class = "signed-url-lookup"
)

// Policy, bir sınıfın bütçesi: Window içinde Limit istek, en fazla Burst birikmiş token.
type Policy struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// DefaultPolicies, upload: 10/dk, signed-url-lookup: 30/dk.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassUpload:    {Limit: 10, Window: time.Minute, Burst: 10},
		ClassSignedURL: {Limit: 30, Window: time.Minute, Burst: 30},
	}
}

// AdmissionGate, bir isteğin kabul edilip edilmeyeceğine karar verir.
// Red durumunda pkg.ErrRateLimited'ı saran *LimitError döner.
type AdmissionGate interface {
	Allow(class Class, userID string) error
}

// LimitError, admission reddi. errors.Is(err, pkg.ErrRateLimited) true döner.
type LimitError struct {
	Class      Class
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry in %s", pkg.ErrRateLimited, e.Class, FormatRetryMessage(e.RetryAfterSeconds()))
}

func (e *LimitError) Unwrap() error { return pkg.ErrRateLimited }

// RetryAfterSeconds, HTTP Retry-After header değeri. Yukarı yuvarlanır, en az 1.
func (e *LimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

type bucketKey struct {
	class Class
	user  string
}

type bucketEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// TokenBucketGate, AdmissionGate'in in-memory token bucket implementasyonu.
//
// Kullanım:
//
//	gate := ratelimit.NewTokenBucketGate(ratelimit.DefaultPolicies(), 10*time.Minute)
//	defer gate.Stop()
//	if err := gate.Allow(ratelimit.ClassUpload, userID); err != nil { return 429 }
type TokenBucketGate struct {
	mu       sync.Mutex
	policies map[Class]Policy
	buckets  map[bucketKey]*bucketEntry
	idleTTL  time.Duration
	now      func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewTokenBucketGate, gate oluşturur. idleTTL > 0 ise bu süre boyunca
// kullanılmayan bucket'ları silen bir goroutine başlatılır.
func NewTokenBucketGate(policies map[Class]Policy, idleTTL time.Duration) *TokenBucketGate {
	g := &TokenBucketGate{
		policies:    policies,
		buckets:     make(map[bucketKey]*bucketEntry),
		idleTTL:     idleTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if idleTTL > 0 {
		go g.cleanupLoop(idleTTL / 2)
	}
	return g
}

// SetClock, zaman kaynağını değiştirir. Testlerde kullanılır.
func (g *TokenBucketGate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Allow, (class, userID) bucket'ından bir token harcar.
// Policy tanımlı olmayan sınıflar sınırsızdır.
func (g *TokenBucketGate) Allow(class Class, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	policy, ok := g.policies[class]
	if !ok || policy.Limit <= 0 {
		return nil
	}

	now := g.now()
	key := bucketKey{class: class, user: userID}
	e, exists := g.buckets[key]
	if !exists {
		burst := policy.Burst
		if burst <= 0 {
			burst = policy.Limit
		}
		e = &bucketEntry{l: rate.NewLimiter(rate.Every(policy.Window/time.Duration(policy.Limit)), burst)}
		g.buckets[key] = e
	}
	e.lastSeen = now

	// Reserve + Cancel: token yoksa ne kadar bekleneceğini öğrenip rezervasyonu geri veriyoruz.
	r := e.l.ReserveN(now, 1)
	if !r.OK() {
		return &LimitError{Class: class, RetryAfter: policy.Window}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &LimitError{Class: class, RetryAfter: delay}
	}
	return nil
}

// Stop, cleanup goroutine'ini durdurur.
func (g *TokenBucketGate) Stop() {
	g.stopOnce.Do(func() { close(g.stopCleanup) })
}

func (g *TokenBucketGate) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.cleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

// cleanup, idleTTL'den uzun süredir kullanılmayan bucket'ları siler.
// Silinen bucket bir sonraki istekte dolu olarak yeniden oluşur; idleTTL
// window'dan uzun olduğu sürece bu zaten dolmuş olacağı için davranış değişmez.
func (g *TokenBucketGate) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, e := range g.buckets {
		if now.Sub(e.lastSeen) > g.idleTTL {
			delete(g.buckets, key)
		}
	}
}

// ExtractIP, HTTP request'ten client IP adresini çıkarır.
//
// Öncelik sırası:
// 1. X-Forwarded-For header (reverse proxy arkasındaysa, ilk IP)
// 2. X-Real-IP header
// 3. RemoteAddr (doğrudan bağlantı)
//
// Kimliği olmayan isteklerde admission anahtarı olarak kullanılır.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatRetryMessage, kalan süreyi okunabilir formata çevirir.
// Örn: 120 → "2 minute(s)", 45 → "45 second(s)"
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
