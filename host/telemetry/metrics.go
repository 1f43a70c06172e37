package telemetry

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dimctl/protocol"
)

// Command results used as the "result" label
const (
	ResultOK       = "ok"
	ResultNoReply  = "no_reply"
	ResultRejected = "rejected"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the scrape handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the dimmer gauges and the command counter
type Metrics struct {
	Power      prometheus.Gauge
	Voltage    prometheus.Gauge
	Current    prometheus.Gauge
	Brightness prometheus.Gauge
	Commands   *prometheus.CounterVec // labels: command, result
}

// NewMetrics registers and returns the dimmer metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Power: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dimmer_power_watts",
			Help: "Active power reported by the dimmer.",
		}),
		Voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dimmer_voltage_volts",
			Help: "Mains voltage reported by the dimmer.",
		}),
		Current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dimmer_current_amps",
			Help: "Load current reported by the dimmer.",
		}),
		Brightness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dimmer_brightness",
			Help: "Brightness reported by the dimmer (0-1000).",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dimmer_commands_total",
			Help: "Commands sent to the dimmer by result.",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(m.Power, m.Voltage, m.Current, m.Brightness, m.Commands)
	return m
}

// ObserveCommand counts a transceiver result; it matches protocol.ResultHook
func (m *Metrics) ObserveCommand(cmd protocol.Command, _ int, err error) {
	m.Commands.WithLabelValues(cmd.String(), Result(err)).Inc()
}

// Result classifies a transceiver error
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, protocol.ErrNoReply):
		return ResultNoReply
	case protocol.IsDispatchError(err):
		return ResultRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}

// GaugeSink sets a gauge to every published value
type GaugeSink struct {
	Gauge prometheus.Gauge
}

func (s GaugeSink) Publish(value float64) {
	s.Gauge.Set(value)
}

// PowerSink returns the sink for decoded power
func (m *Metrics) PowerSink() Sink { return GaugeSink{m.Power} }

// VoltageSink returns the sink for decoded voltage
func (m *Metrics) VoltageSink() Sink { return GaugeSink{m.Voltage} }

// CurrentSink returns the sink for decoded current
func (m *Metrics) CurrentSink() Sink { return GaugeSink{m.Current} }

// BrightnessSink returns the sink for the reported brightness
func (m *Metrics) BrightnessSink() Sink { return GaugeSink{m.Brightness} }
