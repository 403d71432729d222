package monitor

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
)

// Metrics holds the devd monitor collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Events          *prometheus.CounterVec
	LinesDropped    *prometheus.CounterVec
	Connected       prometheus.Gauge
	Reconnects      prometheus.Counter
	AttachedDevices prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devdwatch",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of devd events dispatched",
			},
			[]string{"kind", "action"},
		),

		LinesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devdwatch",
				Subsystem: "lines",
				Name:      "dropped_total",
				Help:      "Total number of devd lines that produced no event",
			},
			[]string{"reason"},
		),

		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "devdwatch",
				Subsystem: "connection",
				Name:      "up",
				Help:      "Whether the devd socket is connected (0 or 1)",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "devdwatch",
				Subsystem: "connection",
				Name:      "reconnects_total",
				Help:      "Total number of reconnect attempts to the devd socket",
			},
		),

		AttachedDevices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "devdwatch",
				Subsystem: "devices",
				Name:      "attached",
				Help:      "Number of devices currently attached",
			},
		),
	}

	m.Registry.MustRegister(m.Events, m.LinesDropped, m.Connected, m.Reconnects, m.AttachedDevices)
	return m
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, devd.ErrLineTooLong):
		return "overflow"
	case errors.Is(err, devd.ErrUnsupportedLine):
		return "unsupported"
	default:
		return "malformed"
	}
}
