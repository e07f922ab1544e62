package engine

// Kind identifies one of the five action kinds.
type Kind string

const (
	KindMkdir   Kind = "mkdir"
	KindCopy    Kind = "copy"
	KindLink    Kind = "link"
	KindRender  Kind = "render"
	KindCommand Kind = "command"
)

// Outcome is the decision taken for a single action.
type Outcome string

const (
	OutcomeCreate   Outcome = "create"
	OutcomeSkip     Outcome = "skip"
	OutcomeConflict Outcome = "conflict"
	OutcomeMissing  Outcome = "missing"
	OutcomeRun      Outcome = "run"
	OutcomeFailed   Outcome = "failed"
)

// Skip reasons.
const (
	ReasonExists         = "exists"
	ReasonIdentical      = "identical"
	ReasonIgnoreExisting = "ignore_existing"
	ReasonLinked         = "linked"
	ReasonCondition      = "condition"
)

// Decision records what the executor decided for one action. Under dry-run the
// decision is the one a real run would have taken.
type Decision struct {
	Kind     Kind
	Outcome  Outcome
	Source   string
	Target   string
	Command  string
	Reason   string
	ExitCode int
	DryRun   bool
	Err      error
}

// Observer receives every decision at the point it is made.
type Observer interface {
	Observe(Decision)
}

// Recorder is an Observer that keeps every decision in order.
type Recorder struct {
	Decisions []Decision
}

func (r *Recorder) Observe(d Decision) {
	r.Decisions = append(r.Decisions, d)
}

// Outcomes returns the recorded outcomes in order.
func (r *Recorder) Outcomes() []Outcome {
	out := make([]Outcome, len(r.Decisions))
	for i, d := range r.Decisions {
		out[i] = d.Outcome
	}
	return out
}

// Summary counts decisions by outcome.
type Summary struct {
	Created   int
	Skipped   int
	Conflicts int
	Missing   int
	Commands  int
	Failed    int
}

func (s *Summary) add(d Decision) {
	switch d.Outcome {
	case OutcomeCreate:
		s.Created++
	case OutcomeSkip:
		s.Skipped++
	case OutcomeConflict:
		s.Conflicts++
	case OutcomeMissing:
		s.Missing++
	case OutcomeRun:
		s.Commands++
	case OutcomeFailed:
		s.Failed++
	}
}

// Changes is the number of decisions that mutate the filesystem or spawn a
// process.
func (s Summary) Changes() int {
	return s.Created + s.Commands
}
