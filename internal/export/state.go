package export

import "fmt"

// State is the pipeline's lifecycle state.
type State int

const (
	Idle State = iota
	SchemaDerived
	Streaming
	Writing
	Rotating
	Draining
	Closed
	Failed
)

var stateNames = [...]string{
	Idle:          "idle",
	SchemaDerived: "schema-derived",
	Streaming:     "streaming",
	Writing:       "writing",
	Rotating:      "rotating",
	Draining:      "draining",
	Closed:        "closed",
	Failed:        "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Closed || s == Failed }

var transitions = map[State][]State{
	Idle:          {SchemaDerived},
	SchemaDerived: {Streaming},
	Streaming:     {Writing, Draining},
	Writing:       {Streaming, Rotating},
	Rotating:      {Streaming},
	Draining:      {Closed},
}

// canTransition reports whether from -> to is a legal step. Any non-terminal
// state may fail.
func canTransition(from, to State) bool {
	if to == Failed {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
