package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_charges_total",
			Help: "Ledger operations by kind and result",
		},
		[]string{"op", "result"}, // charge|peek , ok|error
	)

	DayResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_day_resets_total",
			Help: "Daily counter rollovers performed by the ledger",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		ChargesTotal,
		DayResetsTotal,
	)
}
