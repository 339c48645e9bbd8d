package domain

import (
	"context"
	"time"
)

// fakeStore is an in-memory ApplyStore / ReleaseStore used across the domain
// tests.
type fakeStore struct {
	modules map[string]*ModuleDefinition
	lists   []List
	epics   []Epic
	maxPos  map[string]int

	createErr error

	createdEpics   []Epic
	createdStories []UserStory
	createdTasks   []Task

	due        []Task
	promoteErr map[string]error
	released   map[string]bool
	promotions []promotion
}

type promotion struct {
	taskID     string
	listID     string
	position   int
	releasedAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		modules:    make(map[string]*ModuleDefinition),
		maxPos:     make(map[string]int),
		promoteErr: make(map[string]error),
		released:   make(map[string]bool),
	}
}

func (f *fakeStore) GetModule(_ context.Context, moduleID string) (*ModuleDefinition, error) {
	return f.modules[moduleID], nil
}

func (f *fakeStore) Lists(_ context.Context, _ string) ([]List, error) {
	out := make([]List, len(f.lists))
	copy(out, f.lists)
	return out, nil
}

func (f *fakeStore) Epics(_ context.Context, _ string) ([]Epic, error) {
	all := make([]Epic, 0, len(f.epics)+len(f.createdEpics))
	all = append(all, f.epics...)
	all = append(all, f.createdEpics...)
	return all, nil
}

func (f *fakeStore) MaxPositions(_ context.Context, _ string, listIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	for _, id := range listIDs {
		if max, ok := f.maxPos[id]; ok {
			out[id] = max
		}
	}
	return out, nil
}

func (f *fakeStore) CreateModuleInstance(_ context.Context, _ string, epic *Epic, story UserStory, tasks []Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	if epic != nil {
		f.createdEpics = append(f.createdEpics, *epic)
	}
	f.createdStories = append(f.createdStories, story)
	f.createdTasks = append(f.createdTasks, tasks...)
	return nil
}

func (f *fakeStore) DueStagedTasks(_ context.Context, _ time.Time) ([]Task, error) {
	out := make([]Task, 0, len(f.due))
	for _, t := range f.due {
		if !f.released[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetList(_ context.Context, _ string, listID string) (*List, error) {
	for i := range f.lists {
		if f.lists[i].ID == listID {
			l := f.lists[i]
			return &l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MaxPosition(_ context.Context, _ string, listID string) (int, bool, error) {
	max, ok := f.maxPos[listID]
	return max, ok, nil
}

func (f *fakeStore) PromoteTask(_ context.Context, task Task, position int, releasedAt time.Time) error {
	if err := f.promoteErr[task.ID]; err != nil {
		return err
	}
	if f.released[task.ID] {
		return ErrAlreadyReleased
	}
	f.released[task.ID] = true
	f.promotions = append(f.promotions, promotion{
		taskID:     task.ID,
		listID:     task.ReleaseTargetListID,
		position:   position,
		releasedAt: releasedAt,
	})
	f.maxPos[task.ReleaseTargetListID] = position
	return nil
}
