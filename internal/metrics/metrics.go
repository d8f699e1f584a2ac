// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics counts conversion results in a Prometheus registry.
// Batch runs write the registry to a node_exporter textfile; the relay
// server exposes it over HTTP.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/src2ir/internal/convert"
	"github.com/pdiddy/src2ir/pkg/types"
)

// Metrics holds the conversion collectors and the registry they belong
// to. It implements convert.Recorder.
type Metrics struct {
	reg            *prometheus.Registry
	files          *prometheus.CounterVec
	compileSeconds *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "src2ir_files_total",
				Help: "Source files processed, by language and outcome.",
			},
			[]string{"language", "status"},
		),
		compileSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "src2ir_compile_seconds",
				Help:    "Wall time of compiler invocations that produced IR.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"language"},
		),
	}
	for _, c := range []prometheus.Collector{m.files, m.compileSeconds} {
		if err := m.reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// Record counts one file result. Only converted files contribute to the
// compile time histogram; a skip does no compile work.
func (m *Metrics) Record(res convert.Result) error {
	lang := string(res.Job.Source.Language)
	m.files.WithLabelValues(lang, string(res.Status)).Inc()
	if res.Status == types.ConversionDone {
		m.compileSeconds.WithLabelValues(lang).Observe(res.Duration.Seconds())
	}
	return nil
}

// Registry returns the registry holding the conversion collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path in the node_exporter textfile
// format, creating the parent directory if needed.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
