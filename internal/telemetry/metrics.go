package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type connectorMetrics struct {
	framesDecoded   metric.Int64Counter
	decodeFailures  metric.Int64Counter
	reconnects      metric.Int64Counter
	ordersSubmitted metric.Int64Counter
	ordersRejected  metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *connectorMetrics
)

func instruments() *connectorMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("connector")
		m := new(connectorMetrics)
		m.framesDecoded, _ = meter.Int64Counter("connector_stream_frames_decoded",
			metric.WithDescription("Stream frames decoded into canonical updates"),
			metric.WithUnit("{frame}"))
		m.decodeFailures, _ = meter.Int64Counter("connector_stream_decode_failures",
			metric.WithDescription("Stream frames dropped because they failed to decode"),
			metric.WithUnit("{frame}"))
		m.reconnects, _ = meter.Int64Counter("connector_stream_reconnects",
			metric.WithDescription("Stream reconnect attempts after transport failures"),
			metric.WithUnit("{attempt}"))
		m.ordersSubmitted, _ = meter.Int64Counter("connector_orders_submitted",
			metric.WithDescription("Orders accepted by an exchange"),
			metric.WithUnit("{order}"))
		m.ordersRejected, _ = meter.Int64Counter("connector_orders_rejected",
			metric.WithDescription("Orders rejected by an exchange"),
			metric.WithUnit("{order}"))
		metrics = m
	})
	return metrics
}

func exchangeAttr(exchange string) metric.AddOption {
	return metric.WithAttributes(attribute.String("exchange", exchange))
}

// RecordFrame counts a successfully decoded stream frame.
func RecordFrame(ctx context.Context, exchange string) {
	instruments().framesDecoded.Add(ctx, 1, exchangeAttr(exchange))
}

// RecordDecodeFailure counts a frame dropped by the decoder.
func RecordDecodeFailure(ctx context.Context, exchange string) {
	instruments().decodeFailures.Add(ctx, 1, exchangeAttr(exchange))
}

// RecordReconnect counts a stream reconnect attempt.
func RecordReconnect(ctx context.Context, exchange string) {
	instruments().reconnects.Add(ctx, 1, exchangeAttr(exchange))
}

// RecordOrderSubmitted counts an order accepted by the venue.
func RecordOrderSubmitted(ctx context.Context, exchange string) {
	instruments().ordersSubmitted.Add(ctx, 1, exchangeAttr(exchange))
}

// RecordOrderRejected counts an order refused by the venue.
func RecordOrderRejected(ctx context.Context, exchange string) {
	instruments().ordersRejected.Add(ctx, 1, exchangeAttr(exchange))
}
