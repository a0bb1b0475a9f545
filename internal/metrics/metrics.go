// Package metrics exposes Prometheus instrumentation for the monitoring core.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finwatch_events_published_total",
		Help: "Total number of events placed on the delivery queue.",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finwatch_events_delivered_total",
		Help: "Total number of events fully fanned out to subscribers.",
	})

	EventDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finwatch_event_delivery_failures_total",
		Help: "Total number of failed subscriber callback invocations.",
	})

	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "finwatch_event_queue_depth",
		Help: "Current number of events waiting for delivery.",
	})

	JobExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finwatch_job_executions_total",
		Help: "Total number of job executions, labelled by job ID and status.",
	}, []string{"job_id", "status"})

	JobMisfires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finwatch_job_misfires_total",
		Help: "Total number of fires abandoned past their misfire grace period.",
	}, []string{"job_id"})

	AssessmentsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finwatch_assessments_total",
		Help: "Total number of risk assessments computed, labelled by resulting mode.",
	}, []string{"mode"})
)

// Serve starts a metrics listener on the given port. It returns immediately;
// the server runs until the process exits. A port of 0 disables the listener.
func Serve(port int, log zerolog.Logger) {
	if port == 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", port).Msg("Metrics listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics listener failed")
		}
	}()
}
