// Package metrics exposes migration progress to prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "migrator"

// Metrics holds the migration collectors. A nil *Metrics records nothing.
type Metrics struct {
	extracted        *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	skipped          *prometheus.CounterVec
	messages         *prometheus.CounterVec
	ingested         *prometheus.CounterVec
	outOfWeight      *prometheus.CounterVec
	sourceStage      prometheus.Gauge
	destinationStage prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		extracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Records removed from the source and handed to the outbox",
		}, []string{"domain"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records removed from the source without being sent",
		}, []string{"domain"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Source records left in place because they could not be decoded",
		}, []string{"domain"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages enqueued towards the other chain",
		}, []string{"kind"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_ingested_total",
			Help:      "Items applied on the destination by outcome",
		}, []string{"domain", "result"}),
		outOfWeight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_of_weight_total",
			Help:      "Steps that could not make progress within their budget",
		}, []string{"chain"}),
		sourceStage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_stage",
			Help:      "Current source migration stage",
		}),
		destinationStage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "destination_stage",
			Help:      "Current destination migration stage",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.extracted, m.dropped, m.skipped, m.messages, m.ingested,
		m.outOfWeight, m.sourceStage, m.destinationStage,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Extracted(domain string, n int) {
	if m != nil && n > 0 {
		m.extracted.WithLabelValues(domain).Add(float64(n))
	}
}

func (m *Metrics) Dropped(domain string, n int) {
	if m != nil && n > 0 {
		m.dropped.WithLabelValues(domain).Add(float64(n))
	}
}

func (m *Metrics) Skipped(domain string) {
	if m != nil {
		m.skipped.WithLabelValues(domain).Inc()
	}
}

func (m *Metrics) MessagesSent(kind string, n int) {
	if m != nil && n > 0 {
		m.messages.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) Ingested(domain string, good, bad int) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(domain, "good").Add(float64(good))
	m.ingested.WithLabelValues(domain, "bad").Add(float64(bad))
}

func (m *Metrics) OutOfWeight(chain string) {
	if m != nil {
		m.outOfWeight.WithLabelValues(chain).Inc()
	}
}

func (m *Metrics) SourceStage(stage uint8) {
	if m != nil {
		m.sourceStage.Set(float64(stage))
	}
}

func (m *Metrics) DestinationStage(stage uint8) {
	if m != nil {
		m.destinationStage.Set(float64(stage))
	}
}
