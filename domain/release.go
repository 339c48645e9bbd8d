package domain

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// ReleaseStore is the persistence slice the release job needs. PromoteTask
// must be guarded: it only succeeds while the task is still unreleased, and
// returns ErrAlreadyReleased when a concurrent run won the race.
type ReleaseStore interface {
	// DueStagedTasks returns non-archived staged tasks whose scheduled
	// release date is at or before now and that have not been released.
	DueStagedTasks(ctx context.Context, now time.Time) ([]Task, error)
	// GetList returns the list, or nil when it does not exist.
	GetList(ctx context.Context, boardID, listID string) (*List, error)
	// MaxPosition returns the maximum non-archived card position in the
	// list; ok is false when the list has no cards.
	MaxPosition(ctx context.Context, boardID, listID string) (max int, ok bool, err error)
	// PromoteTask moves the task to its release target list at the given
	// position and stamps releasedAt, provided it is still unreleased.
	PromoteTask(ctx context.Context, task Task, position int, releasedAt time.Time) error
}

// ReleaseStats is the aggregate outcome of one scheduler run.
type ReleaseStats struct {
	Released int `json:"releasedCount"`
	Skipped  int `json:"skippedCount"`
	Failed   int `json:"failedCount"`
}

// ReleaseDueTasks promotes every due staged task to its release target list.
// Tasks are processed independently: one failure is logged and counted but
// never aborts the batch, and a failed task stays unreleased so a future run
// retries it. The whole job keeps no state between invocations; overlapping
// runs are safe because promotion is guarded per row.
func ReleaseDueTasks(ctx context.Context, store ReleaseStore, now time.Time, logger *log.Logger) (ReleaseStats, error) {
	var stats ReleaseStats

	due, err := store.DueStagedTasks(ctx, now)
	if err != nil {
		return stats, err
	}

	for _, task := range due {
		fields := log.Fields{
			"task_id":     task.ID,
			"board_id":    task.BoardID,
			"target_list": task.ReleaseTargetListID,
		}

		target, err := store.GetList(ctx, task.BoardID, task.ReleaseTargetListID)
		if err != nil {
			stats.Failed++
			logger.WithFields(fields).WithError(err).Error("release: target list lookup failed")
			continue
		}
		if target == nil || target.Archived {
			stats.Failed++
			logger.WithFields(fields).Warn("release: target list missing or archived, leaving task staged")
			continue
		}

		position := 0
		if max, ok, err := store.MaxPosition(ctx, task.BoardID, target.ID); err != nil {
			stats.Failed++
			logger.WithFields(fields).WithError(err).Error("release: position lookup failed")
			continue
		} else if ok {
			position = max + 1
		}

		switch err := store.PromoteTask(ctx, task, position, now); {
		case err == nil:
			stats.Released++
			logger.WithFields(fields).Info("release: task promoted")
		case errors.Is(err, ErrAlreadyReleased):
			stats.Skipped++
			logger.WithFields(fields).Debug("release: task already released, skipping")
		default:
			stats.Failed++
			logger.WithFields(fields).WithError(err).Error("release: promote failed")
		}
	}

	return stats, nil
}
