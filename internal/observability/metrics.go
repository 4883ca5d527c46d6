package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll cycle outcomes.
const (
	PollOutcomeOK        = "ok"
	PollOutcomeTransport = "transport_error"
	PollOutcomeDecode    = "decode_error"
)

// Envelope delivery classifications.
const (
	DeliveryClaimed   = "claimed"
	DeliveryUnclaimed = "unclaimed"
	DeliveryDropped   = "dropped"
)

var (
	registerOnce sync.Once

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "janusctl",
			Subsystem: "gateway",
			Name:      "commands_total",
			Help:      "Gateway commands sent, by command and outcome.",
		},
		[]string{"command", "success"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "janusctl",
			Subsystem: "gateway",
			Name:      "command_duration_seconds",
			Help:      "Synchronous command round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "janusctl",
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Long-poll cycles, by outcome.",
		},
		[]string{"outcome"},
	)
	envelopesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "janusctl",
			Subsystem: "poll",
			Name:      "envelopes_total",
			Help:      "Envelopes routed off the poll channel, by delivery.",
		},
		[]string{"delivery"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(commandsTotal, commandDuration, pollCycles, envelopesRouted)
	})
}

func RecordCommand(command string, success bool, duration time.Duration) {
	RegisterMetrics()
	commandsTotal.WithLabelValues(command, strconv.FormatBool(success)).Inc()
	commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordPollCycle(outcome string) {
	RegisterMetrics()
	pollCycles.WithLabelValues(outcome).Inc()
}

func RecordEnvelope(delivery string) {
	RegisterMetrics()
	envelopesRouted.WithLabelValues(delivery).Inc()
}
