package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTransition_DirectAnswer(t *testing.T) {
	m := Transition(NewMachine(8), EventFinalText)
	assert.Equal(t, StateDone, m.State)
	assert.Equal(t, OutcomeSuccess, m.Outcome)
	assert.Equal(t, 1, m.Iterations)
}

func TestTransition_ToolRoundTrip(t *testing.T) {
	m := NewMachine(8)
	m = Transition(m, EventToolCalls)
	assert.Equal(t, StateExecutingTool, m.State)
	m = Transition(m, EventToolsDone)
	assert.Equal(t, StateAwaitingModel, m.State)
	m = Transition(m, EventFinalText)
	assert.Equal(t, OutcomeSuccess, m.Outcome)
	assert.Equal(t, 2, m.Iterations)
}

func TestTransition_CapForcesFinal(t *testing.T) {
	m := NewMachine(3)
	for i := 0; i < 2; i++ {
		m = Transition(m, EventToolCalls)
		assert.Equal(t, StateExecutingTool, m.State)
		m = Transition(m, EventToolsDone)
	}
	m = Transition(m, EventToolCalls)
	assert.Equal(t, StateForcedFinal, m.State)
	assert.True(t, m.AwaitsModel())

	m = Transition(m, EventToolCalls)
	assert.Equal(t, StateDone, m.State)
	assert.Equal(t, OutcomeForced, m.Outcome)
	assert.Equal(t, 4, m.Iterations)
}

func TestTransition_ModelFailure(t *testing.T) {
	m := Transition(NewMachine(8), EventModelFailed)
	assert.Equal(t, StateDone, m.State)
	assert.Equal(t, OutcomeFailed, m.Outcome)
}

func TestTransition_IgnoresUnexpectedEvents(t *testing.T) {
	m := NewMachine(8)
	assert.Equal(t, m, Transition(m, EventToolsDone))

	done := Transition(m, EventFinalText)
	assert.Equal(t, done, Transition(done, EventToolCalls))

	exec := Transition(m, EventToolCalls)
	assert.Equal(t, exec, Transition(exec, EventFinalText))
}

// Any event sequence ends within MaxIterations+1 model turns.
func TestTransition_BoundedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxIter := rapid.IntRange(1, 10).Draw(t, "max")
		events := rapid.SliceOfN(rapid.SampledFrom([]Event{EventToolCalls, EventFinalText, EventToolsDone, EventModelFailed}), 0, 100).Draw(t, "events")

		m := NewMachine(maxIter)
		prev := 0
		for _, ev := range events {
			m = Transition(m, ev)
			if m.Iterations < prev {
				t.Fatalf("iterations went backwards: %d -> %d", prev, m.Iterations)
			}
			prev = m.Iterations
			if m.Iterations > maxIter+1 {
				t.Fatalf("iterations %d exceed cap %d", m.Iterations, maxIter+1)
			}
		}

		// An adversary that always asks for tools is stopped.
		m = NewMachine(maxIter)
		for i := 0; i < 3*maxIter && m.State != StateDone; i++ {
			if m.State == StateExecutingTool {
				m = Transition(m, EventToolsDone)
			} else {
				m = Transition(m, EventToolCalls)
			}
		}
		if m.State != StateDone || m.Outcome != OutcomeForced || m.Iterations != maxIter+1 {
			t.Fatalf("adversary not stopped: %+v", m)
		}
	})
}
