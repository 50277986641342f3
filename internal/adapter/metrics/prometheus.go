package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rl1809/clinic-ledger/internal/port"
)

var _ port.Metrics = (*Prometheus)(nil)

type Prometheus struct {
	reaped      prometheus.Counter
	allocations *prometheus.CounterVec
	invoices    *prometheus.CounterVec
}

// NewPrometheus registers the ledger counters on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "stock",
			Name:      "batches_reaped_total",
			Help:      "Batches deactivated for expiring inside the horizon.",
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "stock",
			Name:      "allocations_total",
			Help:      "FIFO allocations by outcome.",
		}, []string{"outcome"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "invoice_writes_total",
			Help:      "Invoice writes by kind (draft, payment).",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{p.reaped, p.allocations, p.invoices} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) BatchesReaped(n int) {
	p.reaped.Add(float64(n))
}

func (p *Prometheus) AllocationFinished(satisfied bool) {
	outcome := "short"
	if satisfied {
		outcome = "satisfied"
	}
	p.allocations.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) InvoiceWritten(kind string) {
	p.invoices.WithLabelValues(kind).Inc()
}
