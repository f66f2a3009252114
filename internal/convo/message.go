package convo

import "time"

// Kind classifies conversation messages.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindError     Kind = "error"
	KindSystem    Kind = "system"
)

// Message is a single entry in the conversation transcript.
type Message struct {
	Kind Kind
	Text string
	Lang string
	Time time.Time
}

// Phase names the loop's position in the listen/process cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseStopping   Phase = "stopping"
)

// State describes the conversation loop at a point in time.
type State struct {
	Active bool
	Phase  Phase
}

// Observer receives transcript entries and state transitions. Callbacks run
// on the loop goroutine and must not block.
type Observer interface {
	OnMessage(Message)
	OnStateChange(State)
}
