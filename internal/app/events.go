package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// droppedEventCounter returns an error handler for event sinks that counts
// undelivered events on the buildchain.events.dropped metric.
func droppedEventCounter(mp metric.MeterProvider) (func(error), error) {
	counter, err := mp.Meter("github.com/specialistvlad/buildchain/internal/app").Int64Counter(
		"buildchain.events.dropped",
		metric.WithDescription("Build events that could not be delivered to an event sink."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped events counter: %w", err)
	}
	return func(error) {
		counter.Add(context.Background(), 1)
	}, nil
}
