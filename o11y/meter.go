package o11y

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meter holds the package-level OTel meter used by metric recording functions.
var meter metric.Meter

// Pre-registered instruments for the streaming and retrieval paths.
var (
	chunkCounter  metric.Int64Counter
	searchCounter metric.Int64Counter
	stepDuration  metric.Float64Histogram

	meterOnce sync.Once
	meterErr  error
)

func init() {
	meter = otel.Meter("github.com/praxisworks/tabula/o11y")
}

// initInstruments lazily creates the pre-defined metric instruments. This is
// deferred so callers can configure the meter provider before first use.
func initInstruments() error {
	meterOnce.Do(func() {
		var err error

		chunkCounter, err = meter.Int64Counter(
			"tabula.stream.chunks",
			metric.WithDescription("Number of streaming chunks emitted"),
			metric.WithUnit("{chunk}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		searchCounter, err = meter.Int64Counter(
			"tabula.retrieval.searches",
			metric.WithDescription("Number of index searches performed"),
			metric.WithUnit("{search}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		stepDuration, err = meter.Float64Histogram(
			"tabula.pipeline.step.duration",
			metric.WithDescription("Duration of pipeline steps"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			meterErr = err
			return
		}
	})
	return meterErr
}

// InitMeter configures the package-level meter with the given service name.
// This should be called after setting up the OTel meter provider. If not
// called, the default global meter provider is used.
func InitMeter(serviceName string) error {
	meter = otel.Meter(
		"github.com/praxisworks/tabula/o11y",
		metric.WithInstrumentationAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	// Reset so instruments are re-created with the new meter.
	meterOnce = sync.Once{}
	meterErr = nil
	return initInstruments()
}

// ChunkEmitted records one streaming chunk of the given delta type.
func ChunkEmitted(ctx context.Context, deltaType string) {
	if err := initInstruments(); err != nil {
		return
	}
	chunkCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("delta.type", deltaType)),
	)
}

// SearchPerformed records one search against the named engine.
func SearchPerformed(ctx context.Context, engine string) {
	if err := initInstruments(); err != nil {
		return
	}
	searchCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("search.engine", engine)),
	)
}

// StepDuration records the duration of a named pipeline step in milliseconds.
func StepDuration(ctx context.Context, step string, durationMs float64) {
	if err := initInstruments(); err != nil {
		return
	}
	stepDuration.Record(ctx, durationMs,
		metric.WithAttributes(attribute.String("pipeline.step", step)),
	)
}

// Counter records an increment to a named counter metric.
func Counter(ctx context.Context, name string, value int64) {
	c, err := meter.Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, value)
}

// Histogram records a value to a named histogram metric.
func Histogram(ctx context.Context, name string, value float64) {
	h, err := meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, value)
}
