// Package main: Handler katmanı başlatma.
//
// Handler'lar "thin" dir: sadece HTTP parse + service call + response write.
package main

import (
	"github.com/akinalp/chatflow/config"
	"github.com/akinalp/chatflow/handlers"
	"github.com/akinalp/chatflow/pkg/logger"
)

// Handlers, handler instance'larını tutan container struct.
type Handlers struct {
	Upload *handlers.UploadHandler
}

// initHandlers, handler'ları service dependency'leri ile oluşturur.
func initHandlers(svcs *Services, cfg *config.Config, log *logger.Logger) *Handlers {
	return &Handlers{
		Upload: handlers.NewUploadHandler(svcs.Upload, svcs.SignedURL, cfg.Upload.MaxSize, log),
	}
}
