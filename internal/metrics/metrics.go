package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Calls to the CBIR backend, by endpoint and outcome (ok, status, transport).
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travellens_backend_requests_total",
		Help: "Requests sent to the CBIR backend",
	}, []string{"endpoint", "outcome"})

	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "travellens_backend_request_duration_seconds",
		Help:    "Time taken by CBIR backend requests",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}, // uploads embed every image server-side
	}, []string{"endpoint"})

	UploadedImages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "travellens_uploaded_images_total",
		Help: "Images accepted by the backend through the upload form",
	})

	ValidationRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travellens_validation_rejects_total",
		Help: "Form submissions rejected before any backend call",
	}, []string{"workflow"})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "travellens_sessions",
		Help: "Live browser sessions",
	})

	Previews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "travellens_preview_handles",
		Help: "Preview thumbnails currently held on disk",
	})
)
