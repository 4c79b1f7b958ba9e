package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	// second registration is a no-op
	Register(reg)

	TransferExitCodes.WithLabelValues("7").Inc()
	FilesValidated.WithLabelValues(OutcomeCorrupt).Add(2)
	PlannedFiles.Set(3)

	expectedExit := `# HELP msync_transfer_exit_codes_total Exit codes returned by aria2c.
# TYPE msync_transfer_exit_codes_total counter
msync_transfer_exit_codes_total{code="7"} 1
`
	if err := testutil.CollectAndCompare(TransferExitCodes, strings.NewReader(expectedExit)); err != nil {
		t.Fatalf("unexpected exit code metric: %v", err)
	}

	expectedValidated := `# HELP msync_files_validated_total Parquet validations by outcome.
# TYPE msync_files_validated_total counter
msync_files_validated_total{outcome="corrupt"} 2
`
	if err := testutil.CollectAndCompare(FilesValidated, strings.NewReader(expectedValidated)); err != nil {
		t.Fatalf("unexpected validation metric: %v", err)
	}

	expectedGauge := `# HELP msync_planned_files Files scheduled for transfer by the last plan.
# TYPE msync_planned_files gauge
msync_planned_files 3
`
	if err := testutil.CollectAndCompare(PlannedFiles, strings.NewReader(expectedGauge)); err != nil {
		t.Fatalf("unexpected planned gauge: %v", err)
	}
}

func TestRegisterExposesAllFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	TransferCycles.Inc()
	TransferDuration.Observe(2)
	ValidationDuration.Observe(0.01)

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n == 0 {
		t.Fatal("expected gathered metrics")
	}
	if c := testutil.ToFloat64(TransferCycles); c < 1 {
		t.Fatalf("transfer cycles = %v", c)
	}
}

func TestRPCMetrics(t *testing.T) {
	Aria2RPCErrors.WithLabelValues("aria2.getVersion").Add(2)
	Aria2RPCLatency.WithLabelValues("aria2.tellStatus").Observe(0.02)

	if got := testutil.ToFloat64(Aria2RPCErrors.WithLabelValues("aria2.getVersion")); got < 2 {
		t.Fatalf("rpc errors = %v", got)
	}
	if n := testutil.CollectAndCount(Aria2RPCLatency); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
}
