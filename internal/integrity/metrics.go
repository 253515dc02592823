package integrity

import "github.com/prometheus/client_golang/prometheus"

var (
	violationsFound = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlguard",
		Subsystem: "integrity",
		Name:      "violations",
		Help:      "Number of completed-without-record violations found in the last verification run.",
	})

	integrityRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlguard",
		Subsystem: "integrity",
		Name:      "rate",
		Help:      "Fraction of completed transactions with a compliance record in the last verification run.",
	})

	checksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "amlguard",
		Subsystem: "integrity",
		Name:      "checks_total",
		Help:      "Total integrity verification runs.",
	})

	checkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "amlguard",
		Subsystem: "integrity",
		Name:      "errors_total",
		Help:      "Total integrity verification errors.",
	})
)

func init() {
	prometheus.MustRegister(
		violationsFound,
		integrityRate,
		checksTotal,
		checkErrors,
	)
}
