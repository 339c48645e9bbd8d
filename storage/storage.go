package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"tessera-modules-api/domain"
)

const (
	// Module catalog rows share one partition; the catalog is small and
	// read-mostly.
	modulePartition = "module"

	kindEpic      = "epic"
	kindUserStory = "user-story"
	kindTask      = "task"

	dateLayout = "2006-01-02"

	// Azure table transactions are capped at 100 actions per batch.
	maxTransactionActions = 100
)

// Storage provides access to the module catalog, board tables and the domain
// events queue.
type Storage struct {
	modulesTable *aztables.Client
	listsTable   *aztables.Client
	cardsTable   *aztables.Client
	eventsQueue  *azqueue.QueueClient
	logger       *log.Logger
}

// New creates a Storage instance from the given connection string.
func New(connStr, modulesTable, listsTable, cardsTable, eventsQueue string, logger *log.Logger) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		modulesTable: svc.NewClient(modulesTable),
		listsTable:   svc.NewClient(listsTable),
		cardsTable:   svc.NewClient(cardsTable),
		eventsQueue:  eq,
		logger:       logger,
	}, nil
}

// GetModule returns the module definition, or nil when the catalog has no
// such module.
func (s *Storage) GetModule(ctx context.Context, moduleID string) (*domain.ModuleDefinition, error) {
	resp, err := s.modulesTable.GetEntity(ctx, modulePartition, moduleID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeModuleEntity(resp.Value)
}

// GetList returns a single board list, or nil when it does not exist.
func (s *Storage) GetList(ctx context.Context, boardID, listID string) (*domain.List, error) {
	resp, err := s.listsTable.GetEntity(ctx, boardID, listID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeListEntity(resp.Value)
}

// Lists returns every list on the board.
func (s *Storage) Lists(ctx context.Context, boardID string) ([]domain.List, error) {
	filter := partitionFilter(boardID)
	pager := s.listsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lists := []domain.List{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			l, err := decodeListEntity(raw)
			if err != nil {
				return nil, err
			}
			lists = append(lists, *l)
		}
	}
	return lists, nil
}

// Epics returns the board's non-archived epics.
func (s *Storage) Epics(ctx context.Context, boardID string) ([]domain.Epic, error) {
	filter := epicsFilter(boardID)
	pager := s.cardsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	epics := []domain.Epic{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent cardEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			epics = append(epics, domain.Epic{
				ID:       ent.RowKey,
				BoardID:  ent.PartitionKey,
				Title:    ent.Title,
				ListID:   ent.ListID,
				Position: ent.Position,
				Archived: ent.Archived,
			})
		}
	}
	return epics, nil
}

// MaxPositions scans the board's non-archived cards once and returns the
// maximum position per requested list. Lists without cards are absent from
// the result.
func (s *Storage) MaxPositions(ctx context.Context, boardID string, listIDs []string) (map[string]int, error) {
	wanted := make(map[string]bool, len(listIDs))
	for _, id := range listIDs {
		wanted[id] = true
	}

	filter := activeCardsFilter(boardID)
	sel := "ListID,Position"
	pager := s.cardsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})

	out := make(map[string]int, len(listIDs))
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent struct {
				ListID   string `json:"ListID"`
				Position int    `json:"Position"`
			}
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			if !wanted[ent.ListID] {
				continue
			}
			if max, ok := out[ent.ListID]; !ok || ent.Position > max {
				out[ent.ListID] = ent.Position
			}
		}
	}
	return out, nil
}

// MaxPosition returns the maximum non-archived card position in one list.
func (s *Storage) MaxPosition(ctx context.Context, boardID, listID string) (int, bool, error) {
	maxes, err := s.MaxPositions(ctx, boardID, []string{listID})
	if err != nil {
		return 0, false, err
	}
	max, ok := maxes[listID]
	return max, ok, nil
}

// CreateModuleInstance persists the whole hierarchy as a single table
// transaction on the board partition, so a failure leaves no partial rows.
// Domain events are published after the commit on a best-effort basis.
func (s *Storage) CreateModuleInstance(ctx context.Context, boardID string, epic *domain.Epic, story domain.UserStory, tasks []domain.Task) error {
	count := len(tasks) + 1
	if epic != nil {
		count++
	}
	if count > maxTransactionActions {
		return &domain.ValidationError{
			Message: fmt.Sprintf("module instance needs %d rows, above the per-apply limit of %d", count, maxTransactionActions),
		}
	}

	actions := make([]aztables.TransactionAction, 0, count)
	if epic != nil {
		payload, err := json.Marshal(encodeEpicEntity(*epic))
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: payload})
	}
	storyPayload, err := json.Marshal(encodeUserStoryEntity(story))
	if err != nil {
		return err
	}
	actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: storyPayload})
	for i := range tasks {
		payload, err := json.Marshal(encodeTaskEntity(tasks[i]))
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: payload})
	}

	if _, err := s.cardsTable.SubmitTransaction(ctx, actions, nil); err != nil {
		return err
	}

	events := make([]domain.Event, 0, count)
	if epic != nil {
		events = append(events, newEvent(boardID, epic.ID, kindEpic, domain.EpicCreated, epic))
	}
	events = append(events, newEvent(boardID, story.ID, kindUserStory, domain.UserStoryCreated, story))
	for i := range tasks {
		events = append(events, newEvent(boardID, tasks[i].ID, kindTask, domain.TaskCreated, tasks[i]))
	}
	s.publishEvents(ctx, events)
	return nil
}

// DueStagedTasks returns staged, unreleased, non-archived tasks whose
// scheduled release date is at or before now. The scan crosses board
// partitions; ISO dates compare correctly as strings.
func (s *Storage) DueStagedTasks(ctx context.Context, now time.Time) ([]domain.Task, error) {
	filter := dueTasksFilter(now)
	pager := s.cardsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent cardEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			task, err := ent.toTask()
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, *task)
		}
	}
	return tasks, nil
}

// PromoteTask moves a staged task into its release target list. The update is
// conditioned on the ETag captured while verifying the task is still
// unreleased, so concurrent scheduler runs cannot release the same task
// twice.
func (s *Storage) PromoteTask(ctx context.Context, task domain.Task, position int, releasedAt time.Time) error {
	resp, err := s.cardsTable.GetEntity(ctx, task.BoardID, task.ID, nil)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("task %s no longer exists", task.ID)
		}
		return err
	}
	var ent cardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return err
	}
	if ent.ReleasedAt != "" {
		return domain.ErrAlreadyReleased
	}

	update := map[string]any{
		"PartitionKey": task.BoardID,
		"RowKey":       task.ID,
		"ListID":       task.ReleaseTargetListID,
		"Position":     position,
		"ReleasedAt":   releasedAt.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	etag := resp.ETag
	_, err = s.cardsTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		if isWriteConflict(err) {
			return domain.ErrAlreadyReleased
		}
		return err
	}

	released := task
	released.ListID = task.ReleaseTargetListID
	released.Position = position
	releasedUTC := releasedAt.UTC()
	released.ReleasedAt = &releasedUTC
	s.publishEvents(ctx, []domain.Event{newEvent(task.BoardID, task.ID, kindTask, domain.TaskReleased, released)})
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// isWriteConflict reports whether err is a 412 or 409 from the table service,
// i.e. another writer changed the entity after our ETag was captured.
func isWriteConflict(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.StatusCode == http.StatusPreconditionFailed || respErr.StatusCode == http.StatusConflict
}

func partitionFilter(boardID string) string {
	return fmt.Sprintf("PartitionKey eq '%s'", boardID)
}

func activeCardsFilter(boardID string) string {
	return fmt.Sprintf("PartitionKey eq '%s' and Archived eq false", boardID)
}

func epicsFilter(boardID string) string {
	return fmt.Sprintf("PartitionKey eq '%s' and Kind eq '%s' and Archived eq false", boardID, kindEpic)
}

func dueTasksFilter(now time.Time) string {
	return fmt.Sprintf(
		"Kind eq '%s' and ReleaseMode eq '%s' and ReleasedAt eq '' and Archived eq false and ScheduledReleaseDate ne '' and ScheduledReleaseDate le '%s'",
		kindTask, domain.DestinationStaged, now.UTC().Format(dateLayout),
	)
}
