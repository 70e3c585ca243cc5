package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ordersCreated     metric.Int64Counter
	statusTransitions metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/shopstack/orderdesk")

	var err error
	ordersCreated, err = meter.Int64Counter(
		"orders.created",
		metric.WithDescription("Orders accepted at checkout"),
	)
	if err != nil {
		otel.Handle(err)
	}
	statusTransitions, err = meter.Int64Counter(
		"orders.status_transitions",
		metric.WithDescription("Committed order status transitions"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// CountOrderCreated records one accepted checkout.
func CountOrderCreated(ctx context.Context) {
	if ordersCreated != nil {
		ordersCreated.Add(ctx, 1)
	}
}

// CountStatusTransition records one committed transition, labelled with the
// destination status.
func CountStatusTransition(ctx context.Context, to string) {
	if statusTransitions != nil {
		statusTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", to)))
	}
}
