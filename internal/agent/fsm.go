package agent

// State is a phase of the reasoning loop.
type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTool
	StateForcedFinal
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTool:
		return "executing_tool"
	case StateForcedFinal:
		return "forced_final"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Outcome is how a finished loop ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeForced
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeForced:
		return "forced"
	case OutcomeFailed:
		return "failed"
	}
	return "pending"
}

// Event is something the loop observed.
type Event int

const (
	// EventToolCalls: the model requested one or more tools.
	EventToolCalls Event = iota
	// EventFinalText: the model answered.
	EventFinalText
	// EventToolsDone: every requested tool produced its observation.
	EventToolsDone
	// EventModelFailed: the model call failed or returned nothing usable.
	EventModelFailed
)

// Machine is the loop state. Iterations counts model turns and never
// exceeds MaxIterations+1.
type Machine struct {
	State         State
	Outcome       Outcome
	Iterations    int
	MaxIterations int
}

func NewMachine(maxIterations int) Machine {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return Machine{State: StateAwaitingModel, MaxIterations: maxIterations}
}

// Transition returns the machine after ev. It has no side effects.
//
// A tool request on the turn that reaches MaxIterations moves to
// ForcedFinal instead of ExecutingTool; the next model turn ends the loop
// whatever it contains.
func Transition(m Machine, ev Event) Machine {
	switch m.State {
	case StateAwaitingModel:
		m.Iterations++
		switch ev {
		case EventToolCalls:
			if m.Iterations >= m.MaxIterations {
				m.State = StateForcedFinal
			} else {
				m.State = StateExecutingTool
			}
		case EventFinalText:
			m.State, m.Outcome = StateDone, OutcomeSuccess
		case EventModelFailed:
			m.State, m.Outcome = StateDone, OutcomeFailed
		default:
			m.Iterations--
		}
	case StateExecutingTool:
		if ev == EventToolsDone {
			m.State = StateAwaitingModel
		}
	case StateForcedFinal:
		switch ev {
		case EventToolCalls, EventFinalText, EventModelFailed:
			m.Iterations++
			m.State, m.Outcome = StateDone, OutcomeForced
		}
	}
	return m
}

// AwaitsModel reports whether the next step is a model turn.
func (m Machine) AwaitsModel() bool {
	return m.State == StateAwaitingModel || m.State == StateForcedFinal
}
