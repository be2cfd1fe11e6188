package workflow

// State is a position in the assignment state machine.
type State int

const (
	Idle State = iota
	Loading
	Embedding
	Suggesting
	AwaitingDecision
	Committing
	Advancing
	Done
)

var stateNames = [...]string{
	Idle:             "idle",
	Loading:          "loading",
	Embedding:        "embedding",
	Suggesting:       "suggesting",
	AwaitingDecision: "awaiting_decision",
	Committing:       "committing",
	Advancing:        "advancing",
	Done:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
