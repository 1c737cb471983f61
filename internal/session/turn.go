package session

// Turn identifies one pending model reply. It is returned by BeginModelTurn and must be passed back on
// every fragment and on finalize. Once the turn is finalized or discarded by a reset, the handle is stale.
type Turn struct {
	id    uint64
	index int
}

// ID returns the sequence number of the turn within its store.
func (t Turn) ID() uint64 { return t.id }

// Index returns the position of the model placeholder in the conversation.
func (t Turn) Index() int { return t.index }

// TurnState is the position of the store in the per-turn state machine.
type TurnState int

// Outcome is how the last model turn ended.
type Outcome int

// Transition names the operation that produced a Snapshot.
type Transition int

const (
	// StateIdle accepts a new submission.
	StateIdle TurnState = iota
	// StateUserSubmitted means a user message was appended and the model placeholder is about to follow.
	StateUserSubmitted
	// StateStreaming means fragments are being appended to the placeholder.
	StateStreaming
)

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

const (
	transitionNone Transition = iota
	TransitionReset
	TransitionUser
	TransitionModelTurn
	TransitionFragment
	TransitionFinalize
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserSubmitted:
		return "user_submitted"
	case StateStreaming:
		return "streaming"
	}
	return "unknown"
}

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

func (t Transition) String() string {
	switch t {
	case TransitionReset:
		return "reset"
	case TransitionUser:
		return "user"
	case TransitionModelTurn:
		return "model_turn"
	case TransitionFragment:
		return "fragment"
	case TransitionFinalize:
		return "finalize"
	}
	return "none"
}
