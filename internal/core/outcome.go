package core

// OutcomeKind classifies what a strategy work unit did, per spec.md §4.13.
// Only Submitted/Partial outcomes mutate monetary counters; every outcome
// produces exactly one activity log entry.
type OutcomeKind string

const (
	OutcomeNoop      OutcomeKind = "noop"
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeSubmitted OutcomeKind = "submitted"
	OutcomePartial   OutcomeKind = "partial"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the classified result of one work unit.
type Outcome struct {
	Kind         OutcomeKind
	SkipReason   string
	OrderRefs    []OrderRef
	FailedRefs   []OrderRef
	FailReason   string
	RawResponse  string
}

// Noop builds a no-action outcome.
func Noop() Outcome { return Outcome{Kind: OutcomeNoop} }

// Skipped builds a gated outcome with the given reason.
func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, SkipReason: reason} }

// Submitted builds a fully-successful outcome.
func Submitted(refs ...OrderRef) Outcome { return Outcome{Kind: OutcomeSubmitted, OrderRefs: refs} }

// Partial builds a mixed-outcome result.
func Partial(ok, failed []OrderRef) Outcome {
	return Outcome{Kind: OutcomePartial, OrderRefs: ok, FailedRefs: failed}
}

// Failed builds a no-orders-placed outcome.
func Failed(reason string, raw string) Outcome {
	return Outcome{Kind: OutcomeFailed, FailReason: reason, RawResponse: raw}
}

// MutatesCounters reports whether this outcome should update monetary
// runtime counters (spec.md §4.13).
func (o Outcome) MutatesCounters() bool {
	return o.Kind == OutcomeSubmitted || o.Kind == OutcomePartial
}
