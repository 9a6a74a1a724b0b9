package udpsession

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Statistic names fired by the session core. Fire-and-forget: a missing MeterProvider
// (noop) makes every Inc call zero-cost.
const (
	StatAEADDecryptFailed      = "udpsession.aead_decrypt_failed"
	StatSenderSignatureInvalid = "udpsession.sender_signature_invalid"
	StatKCEDecryptFail         = "udpsession.kce_decrypt_fail_valid_kce"
	StatDropTooSmall           = "udpsession.drop_too_small"
	StatKXReceived             = "udpsession.kx_received"
	StatBoxReceived            = "udpsession.box_received"
	StatAckReceived            = "udpsession.ack_received"
	StatSecretsEvicted         = "udpsession.secrets_evicted"
	StatPeersEvicted           = "udpsession.peers_evicted"
	StatKXBlacklisted          = "udpsession.kx_blacklisted"
)

var meter = otel.Meter("gnsmesh.udpsession")

// OTelStatistics implements adapters.Statistics with otel Int64Counters,
// one per distinct stat name, created lazily on first use.
type OTelStatistics struct {
	counters map[string]metric.Int64Counter
}

// NewOTelStatistics creates an empty counter set.
func NewOTelStatistics() *OTelStatistics {
	return &OTelStatistics{counters: make(map[string]metric.Int64Counter)}
}

// Inc increments name by delta, creating the underlying otel instrument on
// first use.
func (s *OTelStatistics) Inc(name string, delta int64) {
	c, ok := s.counters[name]
	if !ok {
		var err error
		c, err = meter.Int64Counter(name, metric.WithUnit("{events}"))
		if err != nil {
			return
		}
		s.counters[name] = c
	}
	c.Add(context.Background(), delta)
}
