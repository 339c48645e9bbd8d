package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ApplyStore is the slice of persistence the instantiator needs. All reads
// happen before the single write; CreateModuleInstance must persist the whole
// hierarchy atomically or not at all.
type ApplyStore interface {
	// GetModule returns the module definition, or nil when no such module
	// exists.
	GetModule(ctx context.Context, moduleID string) (*ModuleDefinition, error)
	// Lists returns every list on the board, archived ones included.
	Lists(ctx context.Context, boardID string) ([]List, error)
	// Epics returns the board's non-archived epics.
	Epics(ctx context.Context, boardID string) ([]Epic, error)
	// MaxPositions returns the maximum existing non-archived card position
	// for each of the given lists. Lists without cards are absent from the
	// result.
	MaxPositions(ctx context.Context, boardID string, listIDs []string) (map[string]int, error)
	// CreateModuleInstance persists the hierarchy in one atomic operation.
	// epic is nil when an existing epic is being reused.
	CreateModuleInstance(ctx context.Context, boardID string, epic *Epic, story UserStory, tasks []Task) error
}

// ApplyRequest instantiates one module onto a board.
type ApplyRequest struct {
	BoardID        string         `json:"boardId"`
	ModuleID       string         `json:"moduleId"`
	PlanningListID string         `json:"planningListId"`
	EpicName       string         `json:"epicName,omitempty"`
	UserStoryTitle string         `json:"userStoryTitle,omitempty"`
	Tasks          []TaskOverride `json:"tasks,omitempty"`
}

// ApplyResult is the full created set, returned for display.
type ApplyResult struct {
	Epic       Epic      `json:"epic"`
	EpicReused bool      `json:"epicReused"`
	UserStory  UserStory `json:"userStory"`
	Tasks      []Task    `json:"tasks"`
}

// Applier turns a module definition into an Epic, a UserStory and a set of
// Tasks on a board. One Apply call is one atomic operation: every validation
// runs before the write, and a store failure leaves no partial hierarchy.
type Applier struct {
	Store ApplyStore
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// taskPlan is one template with its destination fully resolved, ready to be
// turned into a card.
type taskPlan struct {
	resolved   ResolvedTemplate
	mode       DestinationMode
	listID     string
	target     string
	stagedFrom string
	scheduled  *time.Time
}

// Apply validates the request, resolves chain order and destinations, and
// creates the hierarchy. Any error means nothing was persisted.
func (a *Applier) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	if req.BoardID == "" {
		return nil, validationf("boardId is required")
	}
	if req.ModuleID == "" {
		return nil, validationf("moduleId is required")
	}
	if req.PlanningListID == "" {
		return nil, validationf("planningListId is required")
	}

	mod, err := a.Store.GetModule(ctx, req.ModuleID)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, &NotFoundError{Kind: "module", ID: req.ModuleID}
	}
	if len(mod.TaskTemplates) == 0 {
		return nil, validationf("module %q has no task templates", mod.ID)
	}

	lists, err := a.Store.Lists(ctx, req.BoardID)
	if err != nil {
		return nil, err
	}
	listByID := make(map[string]*List, len(lists))
	for i := range lists {
		listByID[lists[i].ID] = &lists[i]
	}

	planning := listByID[req.PlanningListID]
	if planning == nil || planning.Archived {
		return nil, &NotFoundError{Kind: "planning list", ID: req.PlanningListID}
	}
	if planning.ViewType != ListViewPlanning {
		return nil, validationf("list %q is not a planning list", planning.ID)
	}

	fallback := fallbackTasksList(lists)
	if fallback == nil {
		return nil, validationf("board %q has no tasks list to receive immediate cards", req.BoardID)
	}

	templateIDs := make(map[string]bool, len(mod.TaskTemplates))
	for _, tpl := range mod.TaskTemplates {
		templateIDs[tpl.ID] = true
	}
	for _, ov := range req.Tasks {
		if !templateIDs[ov.TaskTemplateID] {
			return nil, validationf("override references unknown task template %q", ov.TaskTemplateID)
		}
	}

	resolved := ResolveChainOrder(mod.TaskTemplates, req.Tasks)
	plans := make([]taskPlan, 0, len(resolved))
	for i := range resolved {
		plan, err := a.planTask(&resolved[i], planning, fallback, listByID)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	epic, reused, err := a.resolveEpic(ctx, req, mod, planning)
	if err != nil {
		return nil, err
	}

	receiving := map[string]bool{planning.ID: true}
	if !reused {
		receiving[epic.ListID] = true
	}
	for _, p := range plans {
		receiving[p.listID] = true
	}
	listIDs := make([]string, 0, len(receiving))
	for id := range receiving {
		listIDs = append(listIDs, id)
	}
	maxByList, err := a.Store.MaxPositions(ctx, req.BoardID, listIDs)
	if err != nil {
		return nil, err
	}
	alloc := newPositionAllocator(maxByList)

	if !reused {
		epic.Position = alloc.Next(epic.ListID)
	}

	storyTitle := req.UserStoryTitle
	if storyTitle == "" {
		storyTitle = mod.UserStoryTitle
	}
	story := UserStory{
		ID:       uuid.NewString(),
		BoardID:  req.BoardID,
		Title:    storyTitle,
		ListID:   planning.ID,
		Position: alloc.Next(planning.ID),
		EpicID:   epic.ID,
	}

	now := a.now()
	tasks := make([]Task, 0, len(plans))
	prevInChain := make(map[string]string, len(plans))
	for _, p := range plans {
		task := Task{
			ID:                  uuid.NewString(),
			BoardID:             req.BoardID,
			Title:               p.resolved.Title(),
			Description:         p.resolved.Template.Description,
			Color:               p.resolved.Template.Color,
			StoryPoints:         p.resolved.Template.StoryPoints,
			ListID:              p.listID,
			Position:            alloc.Next(p.listID),
			LinkedEpicID:        epic.ID,
			LinkedUserStoryID:   story.ID,
			ReleaseMode:         p.mode,
			ReleaseTargetListID: p.target,
		}
		if p.mode == DestinationStaged {
			task.StagedFromListID = p.stagedFrom
			task.ScheduledReleaseDate = p.scheduled
		} else {
			released := now
			task.ReleasedAt = &released
		}
		key := p.resolved.ChainKey()
		task.DependsOnTaskID = prevInChain[key]
		prevInChain[key] = task.ID

		tasks = append(tasks, task)
	}

	var newEpic *Epic
	if !reused {
		newEpic = &epic
	}
	if err := a.Store.CreateModuleInstance(ctx, req.BoardID, newEpic, story, tasks); err != nil {
		return nil, err
	}

	return &ApplyResult{Epic: epic, EpicReused: reused, UserStory: story, Tasks: tasks}, nil
}

// planTask resolves the destination for one template. Validation errors name
// the template so the caller can fix the right override.
func (a *Applier) planTask(rt *ResolvedTemplate, planning, fallback *List, listByID map[string]*List) (taskPlan, error) {
	mode := rt.Mode()
	if !mode.Valid() {
		return taskPlan{}, validationf("task template %q has invalid destination mode %q", rt.Template.ID, mode)
	}

	switch mode {
	case DestinationImmediate:
		target := fallback
		if rt.Override != nil && rt.Override.ImmediateListID != "" {
			var err error
			target, err = resolveList(listByID, rt.Override.ImmediateListID, ListViewTasks, rt.Template.ID)
			if err != nil {
				return taskPlan{}, err
			}
		}
		return taskPlan{resolved: *rt, mode: mode, listID: target.ID, target: target.ID}, nil

	default: // DestinationStaged
		staging := planning
		if rt.Override != nil && rt.Override.StagingPlanningListID != "" {
			var err error
			staging, err = resolveList(listByID, rt.Override.StagingPlanningListID, ListViewPlanning, rt.Template.ID)
			if err != nil {
				return taskPlan{}, err
			}
		}
		if staging.StartDate == nil {
			return taskPlan{}, validationf("task template %q: staging list %q has no start date", rt.Template.ID, staging.ID)
		}
		target := fallback
		if rt.Override != nil && rt.Override.ReleaseTargetListID != "" {
			var err error
			target, err = resolveList(listByID, rt.Override.ReleaseTargetListID, ListViewTasks, rt.Template.ID)
			if err != nil {
				return taskPlan{}, err
			}
		}
		scheduled := PreviousBusinessFriday(*staging.StartDate)
		return taskPlan{
			resolved:   *rt,
			mode:       mode,
			listID:     staging.ID,
			target:     target.ID,
			stagedFrom: staging.ID,
			scheduled:  &scheduled,
		}, nil
	}
}

func resolveList(listByID map[string]*List, listID string, want ListViewType, templateID string) (*List, error) {
	l := listByID[listID]
	if l == nil || l.Archived {
		return nil, validationf("task template %q: list %q not found on board", templateID, listID)
	}
	if l.ViewType != want {
		return nil, validationf("task template %q: list %q is not a %s list", templateID, listID, want)
	}
	return l, nil
}

// resolveEpic reuses an existing non-archived epic matching the effective
// name case-insensitively, or prepares a new one placed on the target
// planning list alongside the user story.
func (a *Applier) resolveEpic(ctx context.Context, req ApplyRequest, mod *ModuleDefinition, planning *List) (Epic, bool, error) {
	name := req.EpicName
	if name == "" {
		name = mod.EpicName
	}
	if name == "" {
		return Epic{}, false, validationf("module %q has no epic name and none was provided", mod.ID)
	}

	epics, err := a.Store.Epics(ctx, req.BoardID)
	if err != nil {
		return Epic{}, false, err
	}
	for _, e := range epics {
		if !e.Archived && strings.EqualFold(e.Title, name) {
			return e, true, nil
		}
	}

	return Epic{
		ID:      uuid.NewString(),
		BoardID: req.BoardID,
		Title:   name,
		ListID:  planning.ID,
	}, false, nil
}

// fallbackTasksList picks the list used when no explicit immediate or release
// target is given: a non-archived tasks-view list, preferring the backlog
// phase.
func fallbackTasksList(lists []List) *List {
	var first *List
	for i := range lists {
		l := &lists[i]
		if l.Archived || l.ViewType != ListViewTasks {
			continue
		}
		if l.Phase == PhaseBacklog {
			return l
		}
		if first == nil {
			first = l
		}
	}
	return first
}

func (a *Applier) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
