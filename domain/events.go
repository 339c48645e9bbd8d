package domain

import "encoding/json"

// Event is the envelope published to the domain events queue after a
// successful apply or release. The read-model and stream services consume it;
// this service never reads the queue back.
type Event struct {
	ID         string          `json:"id"`
	BoardID    string          `json:"boardId"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
}

const (
	EpicCreated      = "epic-created"
	UserStoryCreated = "user-story-created"
	TaskCreated      = "task-created"
	TaskReleased     = "task-released"
)
