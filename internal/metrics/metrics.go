package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhub_withdrawal_transitions_total",
		Help: "Committed withdrawal state transitions by resulting status.",
	}, []string{"status"})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payhub_broadcast_dropped_total",
		Help: "Status updates dropped because a subscriber buffer was full.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
