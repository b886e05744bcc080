package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/rbright/hark/internal/session"

type instruments struct {
	sessions           metric.Int64Counter
	engineErrors       metric.Int64Counter
	partialsEmitted    metric.Int64Counter
	partialsSuppressed metric.Int64Counter
	handlesCreated     metric.Int64Counter
	handlesDestroyed   metric.Int64Counter
}

func newInstruments(meter metric.Meter) instruments {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}

	var inst instruments
	inst.sessions = counter(meter, "hark.sessions.started", "Recognition sessions started.")
	inst.engineErrors = counter(meter, "hark.engine.errors", "Engine errors by kind.")
	inst.partialsEmitted = counter(meter, "hark.partials.emitted", "Partial result events emitted.")
	inst.partialsSuppressed = counter(meter, "hark.partials.suppressed", "Duplicate partial results suppressed.")
	inst.handlesCreated = counter(meter, "hark.recognizer.created", "Recognizer handles created.")
	inst.handlesDestroyed = counter(meter, "hark.recognizer.destroyed", "Recognizer handles destroyed.")
	return inst
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(name)
	}
	return c
}

func (i instruments) sessionStarted(mode string) {
	i.sessions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (i instruments) engineError(kind Kind) {
	i.engineErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
