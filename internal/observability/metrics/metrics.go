// Package metrics exposes Prometheus meters for chain operations and the HTTP
// surface.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	xerrors "ContractHub/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the meters recorded by the library.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	Deployments       *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
}

// New creates a dedicated registry with the standard ContractHub meters.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contracthub_operation_duration_seconds",
		Help:    "Duration of chain operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contracthub_operation_total",
		Help: "Total number of chain operations.",
	}, []string{"operation", "status"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contracthub_errors_total",
		Help: "Total number of failed operations by error code.",
	}, []string{"operation", "code"})

	deployments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contracthub_deployments_total",
		Help: "Contracts deployed and enrolled.",
	}, []string{"contract"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contracthub_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"handler", "method", "code"})

	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contracthub_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	reg.MustRegister(opDuration, opTotal, errorsTotal, deployments, httpRequests, httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:          reg,
		OperationDuration: opDuration,
		OperationTotal:    opTotal,
		ErrorsTotal:       errorsTotal,
		Deployments:       deployments,
		HTTPRequests:      httpRequests,
		HTTPLatency:       httpLatency,
	}
}

// Observe records the outcome of operation started at start. A nil receiver is a no-op.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.ErrorsTotal.WithLabelValues(operation, string(xerrors.CodeOf(err))).Inc()
	}
	m.OperationTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// ObserveDeployment counts a confirmed deployment of contract.
func (m *Metrics) ObserveDeployment(contract string) {
	if m == nil {
		return
	}
	m.Deployments.WithLabelValues(contract).Inc()
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func (m *Metrics) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
