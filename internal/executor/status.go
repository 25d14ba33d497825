package executor

// Status is the lifecycle state of a step within one build.
type Status int32

const (
	Pending Status = iota
	Ready
	Running
	Completed
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Skipped
}

// SkipReason explains why a step did not run.
type SkipReason string

const (
	ReasonNone           SkipReason = ""
	ReasonNotProduced    SkipReason = "not produced"
	ReasonUpstreamFailed SkipReason = "upstream failed"
	ReasonCanceled       SkipReason = "canceled"
)
