package downloader

// Event is a progress notification emitted while a sync runs.
//
// Type selects which optional payload is set. Progress carries counters for
// the *Progress events, Cycle describes a transfer/verify cycle and Plan
// summarizes the transfer set.
type Event struct {
	Type     EventType
	Progress *Progress
	Cycle    *Cycle
	Plan     *PlanSummary
}

// EventType is the closed set of events the core emits.
type EventType string

const (
	EventPlanProgress         EventType = "PlanProgress"
	EventPlanComputed         EventType = "PlanComputed"
	EventTransferCycleStarted EventType = "TransferCycleStarted"
	EventTransferProgress     EventType = "TransferProgress"
	EventValidationProgress   EventType = "ValidationProgress"
	EventCycleFinished        EventType = "CycleFinished"
)

// Progress reports completed/total counters. Completion order is not
// guaranteed; consumers must tolerate arbitrary interleaving.
type Progress struct {
	Completed int
	Total     int
	// Failed is only populated by transfer progress.
	Failed int
}

// Cycle describes one transfer-then-verify iteration.
type Cycle struct {
	// Number is 1-based.
	Number   int
	Files    int
	ExitCode int
	// Failed holds the names that failed validation in this cycle.
	Failed []string
	// Verified is false when verification did not run.
	Verified bool
}

// PlanSummary is emitted once planning and session reconciliation finished.
type PlanSummary struct {
	Total     int
	Skipped   int
	ToFetch   int
	Recovered int
}
