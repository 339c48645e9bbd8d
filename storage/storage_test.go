package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"tessera-modules-api/domain"
)

func TestDecodeModuleEntity(t *testing.T) {
	data := []byte(`{
		"PartitionKey": "module",
		"RowKey": "mod-onboarding",
		"EpicName": "Customer Onboarding",
		"UserStoryTitle": "Onboard a new customer",
		"Templates": "[{\"id\":\"tpl-1\",\"title\":\"Kickoff call\",\"destinationMode\":\"immediate\"},{\"id\":\"tpl-2\",\"title\":\"Provision account\",\"destinationMode\":\"staged\",\"chainGroupId\":\"setup\",\"chainOrder\":0}]"
	}`)

	mod, err := decodeModuleEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mod.ID != "mod-onboarding" || mod.EpicName != "Customer Onboarding" {
		t.Fatalf("unexpected module: %+v", mod)
	}
	if len(mod.TaskTemplates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(mod.TaskTemplates))
	}
	tpl := mod.TaskTemplates[1]
	if tpl.DestinationMode != domain.DestinationStaged || tpl.ChainGroupID != "setup" {
		t.Fatalf("unexpected template: %+v", tpl)
	}
	if tpl.ChainOrder == nil || *tpl.ChainOrder != 0 {
		t.Fatalf("unexpected chain order: %+v", tpl.ChainOrder)
	}
}

func TestDecodeModuleEntityRejectsBrokenTemplates(t *testing.T) {
	data := []byte(`{"PartitionKey":"module","RowKey":"mod-broken","Templates":"not json"}`)
	if _, err := decodeModuleEntity(data); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeListEntity(t *testing.T) {
	data := []byte(`{
		"PartitionKey": "board-1",
		"RowKey": "plan-1",
		"Title": "Sprint 12",
		"ViewType": "planning",
		"Phase": "",
		"StartDate": "2026-03-02"
	}`)

	l, err := decodeListEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if l.ID != "plan-1" || l.BoardID != "board-1" || l.ViewType != domain.ListViewPlanning {
		t.Fatalf("unexpected list: %+v", l)
	}
	if l.StartDate == nil || !l.StartDate.Equal(time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date: %v", l.StartDate)
	}
}

func TestDecodeListEntityWithoutStartDate(t *testing.T) {
	data := []byte(`{"PartitionKey":"board-1","RowKey":"backlog-1","Title":"Backlog","ViewType":"tasks","Phase":"backlog"}`)
	l, err := decodeListEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if l.StartDate != nil {
		t.Fatalf("expected nil start date, got %v", l.StartDate)
	}
	if l.Phase != domain.PhaseBacklog {
		t.Fatalf("unexpected phase: %q", l.Phase)
	}
}

func TestTaskEntityRoundTrip(t *testing.T) {
	scheduled := time.Date(2026, time.February, 27, 0, 0, 0, 0, time.UTC)
	task := domain.Task{
		ID:                   "task-1",
		BoardID:              "board-1",
		Title:                "Provision account",
		Description:          "Create the tenant",
		Color:                "#00aa66",
		StoryPoints:          3,
		ListID:               "plan-1",
		Position:             7,
		LinkedEpicID:         "epic-1",
		LinkedUserStoryID:    "story-1",
		ReleaseMode:          domain.DestinationStaged,
		DependsOnTaskID:      "task-0",
		StagedFromListID:     "plan-1",
		ScheduledReleaseDate: &scheduled,
		ReleaseTargetListID:  "backlog-1",
	}

	payload, err := json.Marshal(encodeTaskEntity(task))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var ent cardEntity
	if err := json.Unmarshal(payload, &ent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ent.Kind != kindTask || ent.ScheduledReleaseDate != "2026-02-27" || ent.ReleasedAt != "" {
		t.Fatalf("unexpected entity: %+v", ent)
	}

	got, err := ent.toTask()
	if err != nil {
		t.Fatalf("toTask: %v", err)
	}
	if got.ID != task.ID || got.DependsOnTaskID != "task-0" || got.ReleaseTargetListID != "backlog-1" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.ScheduledReleaseDate == nil || !got.ScheduledReleaseDate.Equal(scheduled) {
		t.Fatalf("unexpected scheduled date: %v", got.ScheduledReleaseDate)
	}
	if got.ReleasedAt != nil {
		t.Fatalf("expected unreleased task, got %v", got.ReleasedAt)
	}
}

func TestReleasedTaskEntityKeepsTimestamp(t *testing.T) {
	released := time.Date(2026, time.March, 2, 6, 30, 0, 0, time.UTC)
	task := domain.Task{
		ID:          "task-1",
		BoardID:     "board-1",
		Title:       "Kickoff call",
		ListID:      "doing-1",
		ReleaseMode: domain.DestinationImmediate,
		ReleasedAt:  &released,
	}

	ent := encodeTaskEntity(task)
	if ent.ReleasedAt != "2026-03-02T06:30:00Z" {
		t.Fatalf("unexpected ReleasedAt column: %q", ent.ReleasedAt)
	}
	got, err := ent.toTask()
	if err != nil {
		t.Fatalf("toTask: %v", err)
	}
	if got.ReleasedAt == nil || !got.ReleasedAt.Equal(released) {
		t.Fatalf("unexpected ReleasedAt: %v", got.ReleasedAt)
	}
	if !got.Released() {
		t.Fatal("task should count as released")
	}
}

func TestDueTasksFilter(t *testing.T) {
	now := time.Date(2026, time.March, 2, 6, 0, 0, 0, time.UTC)
	filter := dueTasksFilter(now)

	for _, want := range []string{
		"Kind eq 'task'",
		"ReleaseMode eq 'staged'",
		"ReleasedAt eq ''",
		"Archived eq false",
		"ScheduledReleaseDate ne ''",
		"ScheduledReleaseDate le '2026-03-02'",
	} {
		if !strings.Contains(filter, want) {
			t.Fatalf("filter %q missing %q", filter, want)
		}
	}
}

func TestEpicsFilter(t *testing.T) {
	filter := epicsFilter("board-1")
	if filter != "PartitionKey eq 'board-1' and Kind eq 'epic' and Archived eq false" {
		t.Fatalf("unexpected filter: %q", filter)
	}
}

func TestIsWriteConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "precondition failed", err: &azcore.ResponseError{StatusCode: http.StatusPreconditionFailed}, want: true},
		{name: "conflict", err: &azcore.ResponseError{StatusCode: http.StatusConflict}, want: true},
		{name: "wrapped precondition failed", err: fmt.Errorf("update card: %w", &azcore.ResponseError{StatusCode: http.StatusPreconditionFailed}), want: true},
		{name: "not found", err: &azcore.ResponseError{StatusCode: http.StatusNotFound}, want: false},
		{name: "server error", err: &azcore.ResponseError{StatusCode: http.StatusInternalServerError}, want: false},
		{name: "plain error", err: errors.New("dial tcp: connection refused"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWriteConflict(tt.err); got != tt.want {
				t.Fatalf("isWriteConflict(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
