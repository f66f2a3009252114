package protocol

import "time"

// ChatMessage is a single conversation entry broadcast on the bus.
type ChatMessage struct {
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"` // user, assistant, error, system
	Text           string    `json:"text"`
	Language       string    `json:"language,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// StateUpdate reports a conversation loop transition.
type StateUpdate struct {
	ConversationID string    `json:"conversation_id"`
	Active         bool      `json:"active"`
	Phase          string    `json:"phase"` // idle, listening, processing, stopping
	Timestamp      time.Time `json:"timestamp"`
}

// SendTextRequest injects a typed utterance into the running conversation.
type SendTextRequest struct {
	Text string `json:"text"`
}

// ProfileUpdate swaps the active input/output language pair.
type ProfileUpdate struct {
	InputLanguage  string `json:"input_language"`
	OutputLanguage string `json:"output_language"`
}

// Ack acknowledges a bus command, carrying the failure reason if any.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DiagReport is the reply payload for diagnostics requests.
type DiagReport struct {
	RuntimeName string            `json:"runtime_name"`
	Version     string            `json:"version"`
	Healthy     bool              `json:"healthy"`
	Components  map[string]string `json:"components"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ListenTestResult is the reply for a one-shot capture check.
type ListenTestResult struct {
	OK         bool   `json:"ok"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StatusReport summarizes the conversation loop for the status endpoint.
type StatusReport struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Active         bool   `json:"active"`
	Phase          string `json:"phase"`
	InputLanguage  string `json:"input_language"`
	OutputLanguage string `json:"output_language"`
	Messages       int64  `json:"messages"`
}

const (
	SubjectChatMessage       = "chat.message"
	SubjectChatSend          = "chat.send"
	SubjectConversationState = "conversation.state"
	SubjectConversationStart = "conversation.start"
	SubjectConversationStop  = "conversation.stop"
	SubjectSettingsProfiles  = "settings.profiles"
	SubjectDiagRequest       = "diag.request"
	SubjectDiagListen        = "diag.listen"
)
