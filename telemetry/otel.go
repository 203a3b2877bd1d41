// Package telemetry adapts the global OpenTelemetry providers to the core
// Telemetry interface. Exporter configuration is the deployment's concern;
// with no SDK installed the global providers are no-ops and so is this.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cortexkit/cortex/core"
)

// Provider implements core.Telemetry on the global OTEL tracer and meter.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu       sync.RWMutex
	counters map[string]metric.Float64Counter
}

// NewProvider creates a provider scoped to the given instrumentation name.
func NewProvider(name string) *Provider {
	return &Provider{
		tracer:   otel.Tracer(name),
		meter:    otel.Meter(name),
		counters: make(map[string]metric.Float64Counter),
	}
}

// StartSpan starts a span and returns it wrapped in the core interface.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric adds to a float64 counter, creating it on first use.
// Counter creation failures are silently dropped: telemetry must never
// break the pipeline.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	counter, err := p.counter(name)
	if err != nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (p *Provider) counter(name string) (metric.Float64Counter, error) {
	p.mu.RLock()
	counter, ok := p.counters[name]
	p.mu.RUnlock()
	if ok {
		return counter, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if counter, ok := p.counters[name]; ok {
		return counter, nil
	}
	counter, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = counter
	return counter, nil
}

// otelSpan adapts an OTEL span to core.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}
