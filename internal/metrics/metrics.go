// Package metrics turns bus events into Prometheus collectors.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sitealert/internal/delivery"
	"sitealert/internal/eventbus"
	"sitealert/internal/feed"
	"sitealert/internal/notification"
)

// Metrics holds the sitealert collectors. All names carry the "sitealert_" prefix.
//
//   - sitealert_notifications_ingested_total{category,priority}
//   - sitealert_notifications_rejected_total{category}
//   - sitealert_notifications_suppressed_total{reason}
//   - sitealert_notifications_unread
//   - sitealert_deliveries_total{channel,outcome}
//   - sitealert_delivery_duration_seconds{channel}
//   - sitealert_feed_state
//   - sitealert_feed_reconnects_total
//   - sitealert_feed_exhausted_total
//   - sitealert_feed_frames_total{type}
//   - sitealert_retention_pruned_total
type Metrics struct {
	Ingested   *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Suppressed *prometheus.CounterVec
	Unread     prometheus.Gauge

	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec

	FeedState      prometheus.Gauge
	FeedReconnects prometheus.Counter
	FeedExhausted  prometheus.Counter
	FeedFrames     *prometheus.CounterVec

	Pruned prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Ingested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitealert_notifications_ingested_total",
			Help: "Notifications accepted into the store",
		}, []string{"category", "priority"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitealert_notifications_rejected_total",
			Help: "Candidates refused by the store",
		}, []string{"category"}),
		Suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitealert_notifications_suppressed_total",
			Help: "Ingested notifications that fired no channel",
		}, []string{"reason"}),
		Unread: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitealert_notifications_unread",
			Help: "Current unread count",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitealert_deliveries_total",
			Help: "Channel deliveries by outcome",
		}, []string{"channel", "outcome"}),
		DeliveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitealert_delivery_duration_seconds",
			Help:    "Time spent in a channel deliverer",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"channel"}),
		FeedState: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitealert_feed_state",
			Help: "Feed state: 0 disconnected, 1 connecting, 2 connected, 3 backoff",
		}),
		FeedReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "sitealert_feed_reconnects_total",
			Help: "Reconnect attempts scheduled",
		}),
		FeedExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "sitealert_feed_exhausted_total",
			Help: "Times the reconnect budget ran out",
		}),
		FeedFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitealert_feed_frames_total",
			Help: "Inbound feed frames by type",
		}, []string{"type"}),
		Pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "sitealert_retention_pruned_total",
			Help: "Records removed by retention",
		}),
	}
}

// Observe applies one bus event. Unrelated events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case notification.IngestedEvent:
		m.Ingested.WithLabelValues(string(d.Record.Category), d.Record.Priority.String()).Inc()
		if d.Decision.Suppressed != notification.SuppressNone {
			m.Suppressed.WithLabelValues(string(d.Decision.Suppressed)).Inc()
		}
		m.Unread.Set(float64(d.Unread))
	case notification.RejectedEvent:
		m.Rejected.WithLabelValues(string(d.Category)).Inc()
	case notification.RecordEvent:
		m.Unread.Set(float64(d.Unread))
	case notification.BulkEvent:
		m.Unread.Set(float64(d.Unread))
		if e.Type == notification.EventPruned {
			m.Pruned.Add(float64(d.Count))
		}
	case delivery.DeliveryEvent:
		outcome, ok := deliveryOutcome(e.Type)
		if !ok {
			return
		}
		m.Deliveries.WithLabelValues(string(d.Channel), string(outcome)).Inc()
		if d.Took > 0 {
			m.DeliveryDuration.WithLabelValues(string(d.Channel)).Observe(d.Took.Seconds())
		}
	case feed.StateEvent:
		m.FeedState.Set(float64(d.State))
	case feed.ReconnectEvent:
		switch e.Type {
		case feed.EventReconnect:
			m.FeedReconnects.Inc()
		case feed.EventExhausted:
			m.FeedExhausted.Inc()
		}
	case feed.FrameEvent:
		m.FeedFrames.WithLabelValues(d.Type).Inc()
	}
}

func deliveryOutcome(typ string) (delivery.Outcome, bool) {
	switch typ {
	case delivery.EventSent:
		return delivery.OutcomeSent, true
	case delivery.EventFailed:
		return delivery.OutcomeFailed, true
	case delivery.EventSkipped:
		return delivery.OutcomeSkipped, true
	case delivery.EventDropped:
		return delivery.OutcomeDropped, true
	}
	return "", false
}

// Run feeds bus events into m until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	if bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := eventbus.SubscribePrefix(bus, 256, "notification.", "delivery.", "feed.")
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
