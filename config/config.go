// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// İki tüketici vardır:
//   - upload gateway (main.go): Server, Database, JWT, Upload, SignedURL, Admission
//   - client engine (cmd/chatflow): Client
//
// Log ayarı ikisi tarafından da kullanılır.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Upload    UploadConfig
	SignedURL SignedURLConfig
	Admission AdmissionConfig
	Client    ClientConfig
	Log       LogConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/chatflow.db)
}

// JWTConfig, kimlik token'larını doğrulamak için kullanılan anahtar.
// Token üretimi bu servisin işi değildir; sadece "sub" claim'i okunur.
type JWTConfig struct {
	Secret string
}

// UploadConfig, dosya yükleme ayarları.
type UploadConfig struct {
	Dir     string // Dosyaların kaydedileceği dizin
	MaxSize int64  // Byte cinsinden max dosya boyutu (varsayılan: 10MB)
}

// SignedURLConfig, geçici görüntüleme URL'lerinin imza ayarları.
type SignedURLConfig struct {
	Secret string
	TTL    time.Duration
}

// AdmissionConfig, endpoint sınıfı başına dakikalık istek bütçesi.
type AdmissionConfig struct {
	UploadPerMinute    int
	SignedURLPerMinute int
	IdleTTL            time.Duration
}

// ClientConfig, client engine'in API'ye bağlanma ayarları.
type ClientConfig struct {
	APIURL            string
	WSURL             string
	Token             string
	ResolveTimeout    time.Duration // phase-2 signed URL bekleme üst sınırı
	SignedURLCacheTTL time.Duration
}

// LogConfig, log modu (dev | prod).
type LogConfig struct {
	Mode string
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getInt("SERVER_PORT", 9090)
	if err != nil {
		return nil, err
	}
	maxSize, err := getInt64("UPLOAD_MAX_SIZE", 10<<20)
	if err != nil {
		return nil, err
	}
	signedTTL, err := getInt("SIGNED_URL_TTL_SECONDS", 900)
	if err != nil {
		return nil, err
	}
	uploadRate, err := getInt("ADMISSION_UPLOAD_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	signedRate, err := getInt("ADMISSION_SIGNED_URL_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}
	idleMinutes, err := getInt("ADMISSION_IDLE_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	resolveMs, err := getInt("CLIENT_RESOLVE_TIMEOUT_MS", 3000)
	if err != nil {
		return nil, err
	}
	urlCacheSeconds, err := getInt("CLIENT_SIGNED_URL_CACHE_SECONDS", 300)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/chatflow.db"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Upload: UploadConfig{
			Dir:     getEnv("UPLOAD_DIR", "./data/uploads"),
			MaxSize: maxSize,
		},
		SignedURL: SignedURLConfig{
			Secret: getEnv("SIGNED_URL_SECRET", ""),
			TTL:    time.Duration(signedTTL) * time.Second,
		},
		Admission: AdmissionConfig{
			UploadPerMinute:    uploadRate,
			SignedURLPerMinute: signedRate,
			IdleTTL:            time.Duration(idleMinutes) * time.Minute,
		},
		Client: ClientConfig{
			APIURL:            getEnv("CLIENT_API_URL", "http://localhost:9090"),
			WSURL:             getEnv("CLIENT_WS_URL", "ws://localhost:9090/ws"),
			Token:             getEnv("CLIENT_TOKEN", ""),
			ResolveTimeout:    time.Duration(resolveMs) * time.Millisecond,
			SignedURLCacheTTL: time.Duration(urlCacheSeconds) * time.Second,
		},
		Log: LogConfig{
			Mode: getEnv("LOG_MODE", "dev"),
		},
	}

	return cfg, nil
}

// ValidateServer, gateway'in başlaması için zorunlu gizli anahtarları kontrol eder.
// Client tarafı bu anahtarlara ihtiyaç duymadığı için Load içinde yapılmaz.
func (c *Config) ValidateServer() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.SignedURL.Secret == "" {
		return fmt.Errorf("SIGNED_URL_SECRET environment variable is required")
	}
	if len(c.SignedURL.Secret) < 32 {
		return fmt.Errorf("SIGNED_URL_SECRET must be at least 32 characters")
	}
	return nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
