package domain

// DestinationMode decides whether an instantiated task is live right away or
// parked in a staging planning list until its release date.
type DestinationMode string

const (
	DestinationImmediate DestinationMode = "immediate"
	DestinationStaged    DestinationMode = "staged"
)

// Valid reports whether m is one of the known destination modes.
func (m DestinationMode) Valid() bool {
	return m == DestinationImmediate || m == DestinationStaged
}

// ModuleDefinition is a reusable bundle of task templates owned by the module
// catalog. The scheduler only ever reads it.
type ModuleDefinition struct {
	ID             string         `json:"id"`
	EpicName       string         `json:"epicName"`
	UserStoryTitle string         `json:"userStoryTitle"`
	TaskTemplates  []TaskTemplate `json:"taskTemplates"`
}

// TaskTemplate is one task blueprint inside a module. Templates sharing a
// ChainGroupID form a dependency chain; ChainOrder breaks ties inside the
// group. List ids are board-specific and therefore never live on the
// template, only on per-apply overrides.
type TaskTemplate struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	StoryPoints     int             `json:"storyPoints,omitempty"`
	Color           string          `json:"color,omitempty"`
	DestinationMode DestinationMode `json:"destinationMode"`
	ChainGroupID    string          `json:"chainGroupId,omitempty"`
	ChainOrder      *int            `json:"chainOrder,omitempty"`
}

// TaskOverride lets a caller adjust a single template for one apply without
// touching the catalog.
type TaskOverride struct {
	TaskTemplateID        string           `json:"taskTemplateId"`
	DestinationMode       *DestinationMode `json:"destinationMode,omitempty"`
	ImmediateListID       string           `json:"immediateListId,omitempty"`
	StagingPlanningListID string           `json:"stagingPlanningListId,omitempty"`
	ReleaseTargetListID   string           `json:"releaseTargetListId,omitempty"`
	Title                 string           `json:"title,omitempty"`
}
