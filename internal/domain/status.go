package domain

// Action identifies which gateway operation a status event belongs to.
type Action string

const (
	ActionTranslate Action = "translate"
	ActionSummarize Action = "summarize"
	ActionSymptoms  Action = "symptoms"
)

// StatusEvent is a transient progress notification pushed to connected
// listeners. Events are broadcast-only and never persisted.
type StatusEvent struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
}
