package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricsEventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gwrelay_events_relayed_total",
	Help: "Number of upstream events relayed to workers",
}, []string{"type"})

var metricsQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "gwrelay_shard_queue_length",
	Help: "Number of events waiting to be relayed per shard",
}, []string{"shard"})

var metricsPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gwrelay_pool_size",
	Help: "Number of available worker connections without a slot",
})

var metricsHandoffs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gwrelay_handoffs_total",
	Help: "Outcomes of worker connections advertising themselves as available",
}, []string{"outcome"})

var metricsFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gwrelay_failovers_total",
	Help: "Number of times a slot lost its worker connection",
}, []string{"promoted"})
