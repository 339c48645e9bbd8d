package domain

import "time"

// ListViewType distinguishes ordinary task lists from time-boxed planning
// lists.
type ListViewType string

const (
	ListViewTasks    ListViewType = "tasks"
	ListViewPlanning ListViewType = "planning"
)

// ListPhase is the board phase a list belongs to. Only backlog matters to the
// scheduler: the fallback list for immediate cards prefers it.
type ListPhase string

const PhaseBacklog ListPhase = "backlog"

// List is a board column. Planning lists carry a start date marking the
// beginning of the block they represent.
type List struct {
	ID        string       `json:"id"`
	BoardID   string       `json:"boardId"`
	Title     string       `json:"title"`
	ViewType  ListViewType `json:"viewType"`
	Phase     ListPhase    `json:"phase,omitempty"`
	StartDate *time.Time   `json:"startDate,omitempty"`
	Archived  bool         `json:"archived,omitempty"`
}

// Epic is the top of the instantiated hierarchy. Titles are unique per board
// among non-archived epics, compared case-insensitively.
type Epic struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	ListID   string `json:"listId"`
	Position int    `json:"position"`
	Archived bool   `json:"archived,omitempty"`
}

// UserStory sits between an epic and its tasks. It always lives in the
// planning list the module was applied to.
type UserStory struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	ListID   string `json:"listId"`
	Position int    `json:"position"`
	EpicID   string `json:"linkedEpicId"`
	Archived bool   `json:"archived,omitempty"`
}

// Task is an instantiated task card together with its release descriptor.
// ReleaseMode is fixed at creation. ReleasedAt is the sole authority for the
// release state machine: nil means not yet released, and the transition to a
// timestamp happens exactly once.
type Task struct {
	ID          string `json:"id"`
	BoardID     string `json:"boardId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	StoryPoints int    `json:"storyPoints,omitempty"`
	ListID      string `json:"listId"`
	Position    int    `json:"position"`

	LinkedEpicID      string `json:"linkedEpicId"`
	LinkedUserStoryID string `json:"linkedUserStoryId"`

	ReleaseMode          DestinationMode `json:"releaseMode"`
	DependsOnTaskID      string          `json:"dependsOnTaskId,omitempty"`
	StagedFromListID     string          `json:"stagedFromPlanningListId,omitempty"`
	ScheduledReleaseDate *time.Time      `json:"scheduledReleaseDate,omitempty"`
	ReleaseTargetListID  string          `json:"releaseTargetListId"`
	ReleasedAt           *time.Time      `json:"releasedAt,omitempty"`

	Archived bool `json:"archived,omitempty"`
}

// Released reports whether the task has left the staging area.
func (t *Task) Released() bool {
	return t.ReleasedAt != nil
}
