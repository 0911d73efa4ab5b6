// Package logger, zap tabanlı yapısal (structured) log katmanı.
//
// Kullanım:
//
//	log, _ := logger.New("dev")
//	defer log.Sync()
//	log.Named("upload").Info("file stored", "file_id", id, "size", n)
//
// Key-value çiftleri zap'in "sugared" API'sine iletilir. Token, secret gibi
// hassas anahtarların değerleri log'a yazılmadan önce maskelenir.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Logger, zap.SugaredLogger'ı saran ince bir tip.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New, moda göre (prod | dev) yapılandırılmış bir Logger oluşturur.
// prod: JSON çıktı, info seviyesi. dev: okunabilir konsol çıktısı, debug seviyesi.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

// NewNop, hiçbir şey yazmayan Logger döner. Testlerde kullanılır.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Named, alt sistem adı ile etiketlenmiş yeni bir Logger döner (ör: "txn", "upload").
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// With, her satıra eklenecek sabit alanlarla yeni bir Logger döner.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{sugar: l.sugar.With(redact(keysAndValues)...)}
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, redact(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, redact(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, redact(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, redact(keysAndValues)...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...any) {
	l.sugar.Fatalw(msg, redact(keysAndValues)...)
}

// Sync, buffer'daki log satırlarını yazar. main'de defer ile çağrılır.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

// redact, hassas anahtarların değerlerini "[REDACTED]" ile değiştirir.
// Tek sayıda eleman varsa son eleman olduğu gibi bırakılır (zap bunu kendisi raporlar).
func redact(kv []any) []any {
	if len(kv) < 2 {
		return kv
	}
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if ok && isSensitive(key) {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"token", "secret", "authorization", "password", "signature", "api_key"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
