package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"tessera-modules-api/domain"
)

type moduleEntity struct {
	aztables.Entity
	EpicName       string `json:"EpicName"`
	UserStoryTitle string `json:"UserStoryTitle"`
	// Templates holds the ordered task templates as a JSON document; table
	// columns are flat, and the bundle is only ever read whole.
	Templates string `json:"Templates"`
}

type listEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	ViewType  string `json:"ViewType"`
	Phase     string `json:"Phase"`
	StartDate string `json:"StartDate"`
	Archived  bool   `json:"Archived"`
}

// cardEntity is the flattened table row shared by epics, user stories and
// tasks. Date columns hold ISO strings; empty means unset.
type cardEntity struct {
	aztables.Entity
	Kind                 string `json:"Kind"`
	Title                string `json:"Title"`
	Description          string `json:"Description"`
	Color                string `json:"Color"`
	ListID               string `json:"ListID"`
	Position             int    `json:"Position"`
	StoryPoints          int    `json:"StoryPoints"`
	LinkedEpicID         string `json:"LinkedEpicID"`
	LinkedUserStoryID    string `json:"LinkedUserStoryID"`
	ReleaseMode          string `json:"ReleaseMode"`
	DependsOnTaskID      string `json:"DependsOnTaskID"`
	StagedFromListID     string `json:"StagedFromListID"`
	ScheduledReleaseDate string `json:"ScheduledReleaseDate"`
	ReleaseTargetListID  string `json:"ReleaseTargetListID"`
	ReleasedAt           string `json:"ReleasedAt"`
	Archived             bool   `json:"Archived"`
}

func decodeModuleEntity(data []byte) (*domain.ModuleDefinition, error) {
	var ent moduleEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	def := &domain.ModuleDefinition{
		ID:             ent.RowKey,
		EpicName:       ent.EpicName,
		UserStoryTitle: ent.UserStoryTitle,
	}
	if ent.Templates != "" {
		if err := json.Unmarshal([]byte(ent.Templates), &def.TaskTemplates); err != nil {
			return nil, fmt.Errorf("module %s: invalid template bundle: %w", ent.RowKey, err)
		}
	}
	return def, nil
}

func decodeListEntity(data []byte) (*domain.List, error) {
	var ent listEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	l := &domain.List{
		ID:       ent.RowKey,
		BoardID:  ent.PartitionKey,
		Title:    ent.Title,
		ViewType: domain.ListViewType(ent.ViewType),
		Phase:    domain.ListPhase(ent.Phase),
		Archived: ent.Archived,
	}
	if ent.StartDate != "" {
		start, err := time.Parse(dateLayout, ent.StartDate)
		if err != nil {
			return nil, fmt.Errorf("list %s: invalid start date %q: %w", ent.RowKey, ent.StartDate, err)
		}
		l.StartDate = &start
	}
	return l, nil
}

func encodeEpicEntity(e domain.Epic) cardEntity {
	return cardEntity{
		Entity:   aztables.Entity{PartitionKey: e.BoardID, RowKey: e.ID},
		Kind:     kindEpic,
		Title:    e.Title,
		ListID:   e.ListID,
		Position: e.Position,
		Archived: e.Archived,
	}
}

func encodeUserStoryEntity(s domain.UserStory) cardEntity {
	return cardEntity{
		Entity:       aztables.Entity{PartitionKey: s.BoardID, RowKey: s.ID},
		Kind:         kindUserStory,
		Title:        s.Title,
		ListID:       s.ListID,
		Position:     s.Position,
		LinkedEpicID: s.EpicID,
		Archived:     s.Archived,
	}
}

func encodeTaskEntity(t domain.Task) cardEntity {
	ent := cardEntity{
		Entity:              aztables.Entity{PartitionKey: t.BoardID, RowKey: t.ID},
		Kind:                kindTask,
		Title:               t.Title,
		Description:         t.Description,
		Color:               t.Color,
		ListID:              t.ListID,
		Position:            t.Position,
		StoryPoints:         t.StoryPoints,
		LinkedEpicID:        t.LinkedEpicID,
		LinkedUserStoryID:   t.LinkedUserStoryID,
		ReleaseMode:         string(t.ReleaseMode),
		DependsOnTaskID:     t.DependsOnTaskID,
		StagedFromListID:    t.StagedFromListID,
		ReleaseTargetListID: t.ReleaseTargetListID,
		Archived:            t.Archived,
	}
	if t.ScheduledReleaseDate != nil {
		ent.ScheduledReleaseDate = t.ScheduledReleaseDate.UTC().Format(dateLayout)
	}
	if t.ReleasedAt != nil {
		ent.ReleasedAt = t.ReleasedAt.UTC().Format(time.RFC3339)
	}
	return ent
}

func (e *cardEntity) toTask() (*domain.Task, error) {
	task := &domain.Task{
		ID:                  e.RowKey,
		BoardID:             e.PartitionKey,
		Title:               e.Title,
		Description:         e.Description,
		Color:               e.Color,
		StoryPoints:         e.StoryPoints,
		ListID:              e.ListID,
		Position:            e.Position,
		LinkedEpicID:        e.LinkedEpicID,
		LinkedUserStoryID:   e.LinkedUserStoryID,
		ReleaseMode:         domain.DestinationMode(e.ReleaseMode),
		DependsOnTaskID:     e.DependsOnTaskID,
		StagedFromListID:    e.StagedFromListID,
		ReleaseTargetListID: e.ReleaseTargetListID,
		Archived:            e.Archived,
	}
	if e.ScheduledReleaseDate != "" {
		d, err := time.Parse(dateLayout, e.ScheduledReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("task %s: invalid scheduled release date %q: %w", e.RowKey, e.ScheduledReleaseDate, err)
		}
		task.ScheduledReleaseDate = &d
	}
	if e.ReleasedAt != "" {
		ts, err := time.Parse(time.RFC3339, e.ReleasedAt)
		if err != nil {
			return nil, fmt.Errorf("task %s: invalid release timestamp %q: %w", e.RowKey, e.ReleasedAt, err)
		}
		task.ReleasedAt = &ts
	}
	return task, nil
}
