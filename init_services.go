// Package main: Service katmanı başlatma.
//
// initServices, service implementasyonlarını ve admission gate'i oluşturur.
// Her service, ihtiyaç duyduğu repository interface'lerini ve diğer
// dependency'leri constructor injection ile alır.
package main

import (
	"time"

	"github.com/akinalp/chatflow/config"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/ratelimit"
	"github.com/akinalp/chatflow/services"
)

// Services, service instance'larını tutan container struct.
type Services struct {
	Upload    services.UploadService
	SignedURL services.SignedURLService
}

// initServices, upload ve signed URL service'lerini oluşturur.
func initServices(repos *Repositories, cfg *config.Config, log *logger.Logger) *Services {
	return &Services{
		Upload:    services.NewUploadService(repos.File, cfg.Upload.Dir, cfg.Upload.MaxSize, log),
		SignedURL: services.NewSignedURLService(cfg.SignedURL.Secret, cfg.SignedURL.TTL),
	}
}

// initAdmission, endpoint sınıfı başına token bucket gate'i oluşturur.
// Stop() shutdown'da çağrılmalıdır (cleanup goroutine'i).
func initAdmission(cfg *config.Config) *ratelimit.TokenBucketGate {
	policies := ratelimit.DefaultPolicies()
	policies[ratelimit.ClassUpload] = ratelimit.Policy{
		Limit:  cfg.Admission.UploadPerMinute,
		Window: time.Minute,
		Burst:  cfg.Admission.UploadPerMinute,
	}
	policies[ratelimit.ClassSignedURL] = ratelimit.Policy{
		Limit:  cfg.Admission.SignedURLPerMinute,
		Window: time.Minute,
		Burst:  cfg.Admission.SignedURLPerMinute,
	}
	return ratelimit.NewTokenBucketGate(policies, cfg.Admission.IdleTTL)
}
