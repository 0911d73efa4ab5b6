package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/akinalp/chatflow/handlers"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/metrics"
	"github.com/akinalp/chatflow/pkg/ratelimit"
)

// AdmissionMiddleware, pahalı endpoint'leri AdmissionGate arkasına alır.
type AdmissionMiddleware struct {
	gate ratelimit.AdmissionGate
	log  *logger.Logger
}

// NewAdmissionMiddleware, constructor.
func NewAdmissionMiddleware(gate ratelimit.AdmissionGate, log *logger.Logger) *AdmissionMiddleware {
	return &AdmissionMiddleware{gate: gate, log: log.Named("admission")}
}

// Limit, verilen sınıfın bütçesini uygular.
//
// Bucket anahtarı AuthMiddleware'ın koyduğu kullanıcı ID'sidir; kimliksiz
// bir zincirde kullanılırsa client IP'sine düşer.
//
// Red: 429 + Retry-After header + {success:false, error}. Reddedilen istek
// handler'a hiç ulaşmaz, yani hiçbir yan etkisi olmaz.
func (m *AdmissionMiddleware) Limit(class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := handlers.UserIDFromContext(r.Context())
			if !ok {
				key = "ip:" + ratelimit.ExtractIP(r)
			}

			err := m.gate.Allow(class, key)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var limitErr *ratelimit.LimitError
			if !errors.As(err, &limitErr) {
				pkg.Error(w, err)
				return
			}

			metrics.AdmissionDenials.WithLabelValues(string(class)).Inc()
			m.log.Debug("request denied", "class", class, "key", key, "retry_after", limitErr.RetryAfter)

			seconds := limitErr.RetryAfterSeconds()
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
				"too many requests, try again in "+ratelimit.FormatRetryMessage(seconds))
		})
	}
}
