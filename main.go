// Package main, chatflow upload gateway'inin giriş noktasıdır.
//
// Bu dosyanın görevi: Dependency Injection "wire-up":
//  1. Config'i yükle ve zorunlu gizli anahtarları kontrol et
//  2. Logger'ı oluştur
//  3. Database'i başlat (migration'lar binary'ye gömülü)
//  4. Upload dizinini oluştur
//  5. Repository → Service → Handler katmanlarını kur
//  6. Middleware'ları (auth, admission) oluştur, route'ları bağla
//  7. CORS yapılandır
//  8. HTTP Server'ı başlat, sinyal gelince graceful shutdown
//
// Global değişken YOK, her şey burada oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/akinalp/chatflow/config"
	"github.com/akinalp/chatflow/database"
	"github.com/akinalp/chatflow/middleware"
	"github.com/akinalp/chatflow/pkg/logger"
)

// shutdownTimeout, devam eden request'lerin bitmesi için beklenecek süre.
const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", "error", err)
	}
	log.Info("server stopped gracefully")
}

// run, gateway'i başlatır ve SIGINT/SIGTERM gelene kadar bloklar.
func run(cfg *config.Config, log *logger.Logger) error {
	db, err := database.New(cfg.Database.Path, database.Migrations(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.Upload.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	handler, stop := newApp(cfg, db, log)
	defer stop()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second, // 10MB upload yavaş bağlantıda da sığmalı
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newApp, tüm katmanları kurar ve CORS ile sarılmış handler'ı döner.
// Dönen stop fonksiyonu arka plan goroutine'lerini (admission cleanup) durdurur.
func newApp(cfg *config.Config, db *database.DB, log *logger.Logger) (http.Handler, func()) {
	repos := initRepositories(db.Conn)
	svcs := initServices(repos, cfg, log)
	h := initHandlers(svcs, cfg, log)

	gate := initAdmission(cfg)
	authMw := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	admissionMw := middleware.NewAdmissionMiddleware(gate, log)

	mux := http.NewServeMux()
	initRoutes(mux, h, authMw, admissionMw)

	// "*" ile credential'lı istek kabul edilemez; token zaten header'da taşınıyor.
	allowAll := len(cfg.Server.CORSOrigins) == 1 && cfg.Server.CORSOrigins[0] == "*"
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: !allowAll,
	})

	return corsHandler.Handler(mux), gate.Stop
}
