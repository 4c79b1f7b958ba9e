package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TransferCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "msync",
			Name:      "transfer_cycles_total",
			Help:      "Number of aria2c transfer invocations.",
		},
	)

	TransferExitCodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msync",
			Name:      "transfer_exit_codes_total",
			Help:      "Exit codes returned by aria2c.",
		},
		[]string{"code"},
	)

	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "msync",
			Name:      "transfer_duration_seconds",
			Help:      "Wall time of a single aria2c invocation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	FilesValidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msync",
			Name:      "files_validated_total",
			Help:      "Parquet validations by outcome.",
		},
		[]string{"outcome"},
	)

	ValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "msync",
			Name:      "validation_duration_seconds",
			Help:      "Latency of reading a parquet footer and schema.",
		},
	)

	PlannedFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msync",
			Name:      "planned_files",
			Help:      "Files scheduled for transfer by the last plan.",
		},
	)

	Aria2RPCErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msync",
			Name:      "aria2_rpc_errors_total",
			Help:      "Errors from aria2 JSON-RPC calls.",
		},
		[]string{"method"},
	)

	Aria2RPCLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msync",
			Name:      "aria2_rpc_latency_seconds",
			Help:      "Latency of aria2 JSON-RPC calls.",
		},
		[]string{"method"},
	)

	IntegrityFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "msync",
			Name:      "integrity_failures",
			Help:      "Files still failing validation after the retry budget of the last run.",
		},
	)
)

// Validation outcomes used as the files_validated_total label.
const (
	OutcomeValid   = "valid"
	OutcomeCorrupt = "corrupt"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Collectors returns every collector owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{TransferCycles, TransferExitCodes, TransferDuration, FilesValidated, ValidationDuration, PlannedFiles, IntegrityFailures, Aria2RPCErrors, Aria2RPCLatency}
}

// Register registers the metrics into reg. Collectors that are already
// registered are left in place.
func Register(reg prometheus.Registerer) {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}
