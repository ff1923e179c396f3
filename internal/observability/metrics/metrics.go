package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "freshbridge_"

var (
	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "bluetooth_connect_attempts_total",
		Help: "Connection attempts started",
	})

	ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "bluetooth_connect_failures_total",
		Help: "Connection attempts that ended in a transport failure",
	})

	CommandsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "bluetooth_commands_sent_total",
		Help: "Payloads written to the peripheral",
	})

	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "bluetooth_send_failures_total",
		Help: "Payload writes that failed and forced a disconnect",
	})

	ToggleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "schedule_toggle_rejections_total",
		Help: "Toggle requests rejected by the exclusivity rule or missing connection",
	})

	ConnectionUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metricPrefix + "bluetooth_connected",
		Help: "1 while a device connection is active",
	})
)
