package agent

import "fmt"

// LoopState is the state of the tool-calling loop.
type LoopState int

const (
	StateContinue LoopState = iota
	StateClarify
	StateCircuitOpen
	StateDone
	StateBudgetExceeded
)

func (s LoopState) String() string {
	switch s {
	case StateContinue:
		return "continue"
	case StateClarify:
		return "clarify"
	case StateCircuitOpen:
		return "circuit_open"
	case StateDone:
		return "done"
	case StateBudgetExceeded:
		return "budget_exceeded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the loop must stop.
func (s LoopState) Terminal() bool {
	return s != StateContinue
}

// Loop limits.
const (
	DefaultMaxRounds   = 8
	DefaultMaxFailures = 2
)

// Controller drives the loop's state transitions. Failures are counted per
// tool name and reset when that tool succeeds.
type Controller struct {
	maxRounds   int
	maxFailures int
	round       int
	state       LoopState
	failures    map[string]int
	lastError   map[string]string
	tripped     string
}

// NewController creates a Controller; non-positive limits take the defaults.
func NewController(maxRounds, maxFailures int) *Controller {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Controller{
		maxRounds:   maxRounds,
		maxFailures: maxFailures,
		failures:    make(map[string]int),
		lastError:   make(map[string]string),
	}
}

// State returns the current state.
func (c *Controller) State() LoopState {
	return c.state
}

// Round returns the number of rounds started.
func (c *Controller) Round() int {
	return c.round
}

// Next starts a round. It returns false once the loop is terminal, moving to
// BudgetExceeded when the round budget is spent.
func (c *Controller) Next() bool {
	if c.state.Terminal() {
		return false
	}
	if c.round >= c.maxRounds {
		c.state = StateBudgetExceeded
		return false
	}
	c.round++
	return true
}

// Text records a plain-text model answer.
func (c *Controller) Text() LoopState {
	if !c.state.Terminal() {
		c.state = StateDone
	}
	return c.state
}

// ToolResult records one tool outcome.
func (c *Controller) ToolResult(tool string, failed bool, errText string, clarify, breakLoop bool) LoopState {
	if c.state.Terminal() {
		return c.state
	}
	if failed {
		c.failures[tool]++
		c.lastError[tool] = errText
		if c.failures[tool] >= c.maxFailures {
			c.tripped = tool
			c.state = StateCircuitOpen
			return c.state
		}
	} else {
		c.failures[tool] = 0
	}
	switch {
	case clarify:
		c.state = StateClarify
	case breakLoop:
		c.state = StateDone
	}
	return c.state
}

// Tripped names the tool that opened the circuit and its last error.
func (c *Controller) Tripped() (tool, lastError string) {
	return c.tripped, c.lastError[c.tripped]
}

// Failures returns the consecutive failure count for tool.
func (c *Controller) Failures(tool string) int {
	return c.failures[tool]
}
