package model

// RunContext carries correlation_id and causation_id explicitly through
// every component, replacing the source system's context-variable /
// thread-local pattern (spec §9 Design Notes). Every log line, event,
// and persisted record threads this through rather than reading it from
// ambient storage.
type RunContext struct {
	CorrelationID string
	CausationID   string
}

// WithCausation returns a copy of ctx with CausationID replaced, used
// when an artifact is caused by a previous artifact within the same run
// (e.g. a RebalancePlan causing an OrderRequest) rather than by the run
// itself.
func (c RunContext) WithCausation(causationID string) RunContext {
	c.CausationID = causationID
	return c
}
