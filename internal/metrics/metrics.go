// Package metrics exposes billing counters on the prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	InvoicesGenerated prometheus.Counter
	InvoicesSent      prometheus.Counter
	InvoicesRepaired  prometheus.Counter
	RepairScans       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		InvoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lessonbill_invoices_generated_total",
			Help: "Invoices created by the lifecycle engine.",
		}),
		InvoicesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lessonbill_invoices_sent_total",
			Help: "Invoices delivered to students.",
		}),
		InvoicesRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lessonbill_invoices_repaired_total",
			Help: "Invoices fixed or backfilled by the repair scan.",
		}),
		RepairScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lessonbill_repair_scans_total",
			Help: "Repair scans run ahead of dashboard listings.",
		}),
	}
}

func register(m *Metrics) {
	prometheus.MustRegister(
		m.InvoicesGenerated,
		m.InvoicesSent,
		m.InvoicesRepaired,
		m.RepairScans,
	)
}

var Module = fx.Module("metrics",
	fx.Provide(New),
	fx.Invoke(register),
)
