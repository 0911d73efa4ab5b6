// Package main: HTTP route registration.
//
// initRoutes, API endpoint'lerini mux'a bağlar.
// Middleware chain helper'ları burada tanımlıdır:
//   - auth: JWT token doğrulaması
//   - authLimited: auth + endpoint sınıfı admission kontrolü
package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akinalp/chatflow/middleware"
	"github.com/akinalp/chatflow/pkg/ratelimit"
)

// initRoutes, middleware chain'i kurar ve endpoint'leri mux'a bağlar.
//
// Admission auth'tan SONRA çalışır: bucket anahtarı kullanıcı ID'sidir.
// Content endpoint'i kimlik istemez; imza yetkidir.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	authMw *middleware.AuthMiddleware,
	admissionMw *middleware.AdmissionMiddleware,
) {
	authLimited := func(class ratelimit.Class, handler http.HandlerFunc) http.Handler {
		return authMw.Require(admissionMw.Limit(class)(handler))
	}

	// Health check
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"chatflow"}`)
	})

	// Prometheus
	mux.Handle("GET /metrics", promhttp.Handler())

	// Uploads: phase 1
	mux.Handle("POST /api/uploads", authLimited(ratelimit.ClassUpload, h.Upload.Upload))

	// Signed URL lookup: phase 2
	mux.Handle("GET /api/files/{id}/url", authLimited(ratelimit.ClassSignedURL, h.Upload.SignedURL))

	// İmzalı içerik
	mux.HandleFunc("GET /api/files/{id}/content", h.Upload.Content)
}
