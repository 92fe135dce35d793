package agent

import "time"

// TaskClass selects which backend task family an id belongs to. Each class
// has its own endpoints and its own polling cadence.
type TaskClass string

// Task classes.
const (
	ClassNotes  TaskClass = "notes"
	ClassEssays TaskClass = "essays"
)

// PollInterval returns how often a task of this class should be polled.
// Note embeddings finish quickly; essay embeddings chunk whole documents
// and poll at a slower cadence.
func (c TaskClass) PollInterval() time.Duration {
	if c == ClassEssays {
		return 12 * time.Second
	}
	return 3 * time.Second
}

// TaskStatus is the backend-reported state of an async task.
type TaskStatus string

// Task statuses.
const (
	StatusInProgress TaskStatus = "in_progress"
	StatusSuccess    TaskStatus = "success"
	StatusFailure    TaskStatus = "failure"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the task has finished, in any outcome.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

// TaskStatusResponse is the backend's answer to a status poll.
type TaskStatusResponse struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at"`
}

// ServiceHealth is one backend service's health entry.
type ServiceHealth struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthReport is the backend's aggregate health response.
type HealthReport struct {
	Healthy   bool            `json:"healthy"`
	Services  []ServiceHealth `json:"services"`
	Timestamp time.Time       `json:"timestamp"`
}

// NotePayload is one note submitted for embedding.
type NotePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// NoteEmbedRequest submits a batch of notes for embedding.
type NoteEmbedRequest struct {
	Notes []NotePayload `json:"notes"`
}

// EssayEmbedRequest submits a whole document for chunked embedding.
type EssayEmbedRequest struct {
	FileID  string `json:"file_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NoteEmbedding is one embedded note in a completed notes task.
type NoteEmbedding struct {
	NoteID string    `json:"note_id"`
	Vector []float32 `json:"vector"`
}

// EssayEmbedding is one embedded chunk in a completed essays task.
type EssayEmbedding struct {
	NodeID string    `json:"node_id"`
	Vector []float32 `json:"vector"`
}

// SuggestRequest drives suggestion generation for an essay.
type SuggestRequest struct {
	Essay          string             `json:"essay"`
	Authors        []string           `json:"authors,omitempty"`
	Notes          []string           `json:"notes,omitempty"`
	Tonality       map[string]float64 `json:"tonality,omitempty"`
	NumSuggestions int                `json:"num_suggestions,omitempty"`
	Temperature    float64            `json:"temperature,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Usage          bool               `json:"usage,omitempty"`
}

// Suggestion is one generated suggestion.
type Suggestion struct {
	Suggestion string `json:"suggestion"`
}

// SuggestResponse is the non-streaming suggestion payload.
type SuggestResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Stream event types emitted by the streaming suggestion endpoint.
const (
	EventReasoning  = "reasoning"
	EventSuggestion = "suggestion"
	EventDone       = "done"
)

// StreamEvent is one NDJSON line from the streaming suggestion endpoint:
// incremental reasoning text, a completed suggestion, or the final elapsed
// time.
type StreamEvent struct {
	Type       string  `json:"type"`
	Delta      string  `json:"delta,omitempty"`
	Suggestion string  `json:"suggestion,omitempty"`
	Elapsed    float64 `json:"elapsed_seconds,omitempty"`
}
