package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OrdersCreated     prometheus.Counter
	OrdersCancelled   prometheus.Counter
	ReservationFailed prometheus.Counter
	PaymentsProcessed prometheus.Counter
	PaymentsFailed    prometheus.Counter
	Refunds           prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Total number of orders created.",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_cancelled_total",
			Help: "Total number of orders cancelled.",
		}),
		ReservationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_reservations_failed_total",
			Help: "Total number of order requests rejected for insufficient stock.",
		}),
		PaymentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_processed_total",
			Help: "Total number of payments settled by the gateway.",
		}),
		PaymentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_failed_total",
			Help: "Total number of payments rejected by the gateway.",
		}),
		Refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "refunds_total",
			Help: "Total number of refunds booked.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Total number of outbox events published.",
		}, []string{"topic"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_publish_failures_total",
			Help: "Total number of failed event publish attempts.",
		}, []string{"topic"}),
	}

	prometheus.MustRegister(
		m.OrdersCreated, m.OrdersCancelled, m.ReservationFailed,
		m.PaymentsProcessed, m.PaymentsFailed, m.Refunds,
		m.EventsPublished, m.PublishFailures,
	)

	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
