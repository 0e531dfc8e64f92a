package pipeline

// State is the orchestrator's position in an extraction run. Runs move
// INIT → ANALYZING → EXTRACTING → MERGING → DONE, or to FAILED from any
// non-terminal state.
type State string

const (
	StateInit       State = "INIT"
	StateAnalyzing  State = "ANALYZING"
	StateExtracting State = "EXTRACTING"
	StateMerging    State = "MERGING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ProgressFunc observes state transitions during a run. Called
// synchronously from the run goroutine; implementations must not block.
type ProgressFunc func(State)
