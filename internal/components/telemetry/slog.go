package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("internal/components/telemetry")

// SlogAPI logs every report through log/slog. Counts and the number of
// broken and warning reports are also recorded as otel instruments, so
// they reach whatever exporter lib/telemetry installed.
type SlogAPI struct{}

var (
	gauges   sync.Map
	counters sync.Map
)

func instrument[T any](cache *sync.Map, name string, create func(string) (T, error)) (T, bool) {
	if cached, ok := cache.Load(name); ok {
		return cached.(T), true
	}
	created, err := create(name)
	if err != nil {
		var zero T
		return zero, false
	}
	actual, _ := cache.LoadOrStore(name, created)
	return actual.(T), true
}

func (SlogAPI) attrs(id string, params []any) []any {
	out := make([]any, 0, 2+len(params)*2)
	if id != "" {
		out = append(out, "id", id)
	}
	for i, p := range params {
		if err, ok := p.(error); ok {
			p = err.Error()
		}
		out = append(out, fmt.Sprintf("params.%d", i), p)
	}
	return out
}

func (SlogAPI) tally(kind, id string) {
	counter, ok := instrument(&counters, "reports."+kind, func(name string) (metric.Int64Counter, error) {
		return meter.Int64Counter(name)
	})
	if ok {
		counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.tally("broken", id)
	slog.Error("broken component", s.attrs(id, params)...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.tally("warning", id)
	slog.Warn("warning", s.attrs(id, params)...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	slog.Debug(message, s.attrs("", params)...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	gauge, ok := instrument(&gauges, id, func(name string) (metric.Int64Gauge, error) {
		return meter.Int64Gauge(name)
	})
	if ok {
		gauge.Record(context.Background(), count)
	}
	slog.Info("count", "id", id, "n", count)
}
