package session

// State is a step of the interaction.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateAwaitingPlaceholder
	StatePresenting
	StateRunning
	StateExplaining
	StateChatting
	StateQuitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateAwaitingPlaceholder:
		return "awaiting-placeholder"
	case StatePresenting:
		return "presenting"
	case StateRunning:
		return "running"
	case StateExplaining:
		return "explaining"
	case StateChatting:
		return "chatting"
	case StateQuitting:
		return "quitting"
	default:
		return "unknown"
	}
}

// Outcome is how a Run ended.
type Outcome int

const (
	// OutcomeQuit means the user left without running anything.
	OutcomeQuit Outcome = iota
	// OutcomeRan means the command was executed.
	OutcomeRan
	// OutcomeRefused means the command or a value was rejected as unsafe.
	OutcomeRefused
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRan:
		return "ran"
	case OutcomeRefused:
		return "refused"
	default:
		return "quit"
	}
}
