// Package metrics, Prometheus sayaçlarını tek yerde tanımlar.
//
// Sayaçlar hem sunucu (upload gateway) hem client engine tarafından
// kullanılır. Sunucu bunları GET /metrics üzerinden promhttp ile dışa açar.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transaction sonuçları için label değerleri.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeConflict   = "conflict"
	OutcomeAbandoned  = "abandoned"
)

var (
	// Transactions, optimistic mutation transaction'larının sonuçlarını sayar.
	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatflow",
		Name:      "optimistic_transactions_total",
		Help:      "Optimistic mutation transactions by outcome.",
	}, []string{"outcome"})

	// PropagationSkips, hedef entity cache'te olmadığı için atlanan fan-out patch'leri.
	PropagationSkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatflow",
		Name:      "propagation_skips_total",
		Help:      "Fan-out patches skipped because the target entity was not cached.",
	})

	// Uploads, sunucu tarafı upload denemeleri (sonuca göre).
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatflow",
		Name:      "uploads_total",
		Help:      "Upload attempts by result.",
	}, []string{"result"})

	// AdmissionDenials, token bucket reddi (endpoint sınıfına göre).
	AdmissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatflow",
		Name:      "admission_denials_total",
		Help:      "Requests denied by the admission gate, by endpoint class.",
	}, []string{"class"})

	// ResolveFallbacks, phase-2 çözümlemesinin hangi kademede bittiğini sayar
	// (signed | fallback | none | cached).
	ResolveFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatflow",
		Name:      "attachment_resolve_total",
		Help:      "Attachment display URL resolutions by source.",
	}, []string{"source"})
)
