package daemon

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments for the daemon package. When no MeterProvider is
// configured (noop), all recording is zero-cost.
var (
	meter = otel.Meter("gnsmesh.daemon")

	metricPeersConnected  metric.Int64UpDownCounter
	metricLookupsTotal    metric.Int64Counter
	metricLookupsTimedOut metric.Int64Counter
	metricBlocksPublished metric.Int64Counter
	metricBlockstoreMiss  metric.Int64Counter
	metricHelloSent       metric.Int64Counter
)

func init() {
	var err error

	metricPeersConnected, err = meter.Int64UpDownCounter("gnsmesh.peers.connected",
		metric.WithDescription("Number of currently connected peers"),
		metric.WithUnit("{peers}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricLookupsTotal, err = meter.Int64Counter("gnsmesh.lookups.total",
		metric.WithDescription("Total name-resolution lookups issued"),
		metric.WithUnit("{lookups}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricLookupsTimedOut, err = meter.Int64Counter("gnsmesh.lookups.timed_out",
		metric.WithDescription("Lookups that exceeded the configured timeout"),
		metric.WithUnit("{lookups}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricBlocksPublished, err = meter.Int64Counter("gnsmesh.blocks.published",
		metric.WithDescription("GNS blocks published to the DHT"),
		metric.WithUnit("{blocks}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricBlockstoreMiss, err = meter.Int64Counter("gnsmesh.blocks.miss",
		metric.WithDescription("DHT block lookups that found nothing"),
		metric.WithUnit("{blocks}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricHelloSent, err = meter.Int64Counter("gnsmesh.gossip.hello_sent",
		metric.WithDescription("HELLO descriptors forwarded by the gossip scheduler"),
		metric.WithUnit("{messages}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}
}
