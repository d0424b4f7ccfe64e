package agent

import "log"

// State is the agent loop's position within one user turn.
type State string

const (
	StateIdle         State = "IDLE"
	StateRequesting   State = "REQUESTING"
	StateStreaming    State = "STREAMING"
	StateApplyingEdit State = "APPLYING_EDIT"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// StateManager tracks and logs loop state transitions.
type StateManager struct {
	state  State
	logger *log.Logger
}

// NewStateManager creates a state manager starting at IDLE.
func NewStateManager(logger *log.Logger) *StateManager {
	if logger == nil {
		logger = log.Default()
	}
	return &StateManager{state: StateIdle, logger: logger}
}

// Transition moves to the next state and logs the step.
func (m *StateManager) Transition(next State) {
	m.logger.Printf("[STATE] %s -> %s", m.state, next)
	m.state = next
}

// Current returns the current state.
func (m *StateManager) Current() State {
	return m.state
}
