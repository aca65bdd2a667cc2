// Package metrics exposes prometheus instrumentation of the logger itself:
// frames read per device, dropped frames, transport failures, sink writes.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "framelog"

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FramesTotal     *prometheus.CounterVec
	FramesMalformed *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SinkWrites      *prometheus.CounterVec
	StoreMetrics    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "frames",
				Name:      "total",
				Help:      "Frames assembled and merged into the store",
			},
			[]string{"device"},
		),
		FramesMalformed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "frames",
				Name:      "malformed_total",
				Help:      "Frames dropped because they did not decode",
			},
			[]string{"device"},
		),
		TransportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Sessions stopped by a transport failure",
			},
			[]string{"device"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Reader sessions currently running",
			},
		),
		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "writes_total",
				Help:      "Snapshot deliveries by sink and outcome",
			},
			[]string{"sink", "status"},
		),
		StoreMetrics: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "metrics",
				Help:      "Distinct metric names held in the store",
			},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.FramesTotal,
		m.FramesMalformed,
		m.TransportErrors,
		m.SessionsActive,
		m.SinkWrites,
		m.StoreMetrics,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) FrameAssembled(device string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(device).Inc()
}

func (m *Metrics) FrameMalformed(device string) {
	if m == nil {
		return
	}
	m.FramesMalformed.WithLabelValues(device).Inc()
}

func (m *Metrics) TransportError(device string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(device).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// SinkWrite records the outcome of one delivery.
func (m *Metrics) SinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SinkWrites.WithLabelValues(sink, status).Inc()
}

func (m *Metrics) StoreSize(n int) {
	if m == nil {
		return
	}
	m.StoreMetrics.Set(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
