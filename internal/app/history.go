package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"trivia-quiz-service/internal/domain"
)

// HistoryStore persists finished session results per user.
type HistoryStore interface {
	Save(ctx context.Context, userID string, result domain.SessionResult) error
	List(ctx context.Context, userID string) ([]domain.SessionResult, error)
}

// HistoryRecorder writes every finished result to the local store and, when
// configured, the remote one. The writes are independent of each other.
type HistoryRecorder struct {
	local  HistoryStore
	remote HistoryStore
	logger *zap.SugaredLogger
}

// NewHistoryRecorder builds a recorder; remote may be nil.
func NewHistoryRecorder(local, remote HistoryStore, logger *zap.SugaredLogger) *HistoryRecorder {
	return &HistoryRecorder{local: local, remote: remote, logger: logger}
}

func (h *HistoryRecorder) Record(ctx context.Context, userID string, result domain.SessionResult) error {
	var errs []error
	if err := h.local.Save(ctx, userID, result); err != nil {
		errs = append(errs, fmt.Errorf("local history: %w", err))
	}
	if h.remote != nil {
		if err := h.remote.Save(ctx, userID, result); err != nil {
			errs = append(errs, fmt.Errorf("remote history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// History merges local and remote results, de-duplicated by ID, newest first. A
// failing store is skipped unless every store fails.
func (h *HistoryRecorder) History(ctx context.Context, userID string) ([]domain.SessionResult, error) {
	local, localErr := h.local.List(ctx, userID)
	if localErr != nil {
		h.logger.Warnw("local history unavailable", "user", userID, "err", localErr)
	}
	if h.remote == nil {
		if localErr != nil {
			return nil, localErr
		}
		return mergeHistory(local, nil), nil
	}

	remote, remoteErr := h.remote.List(ctx, userID)
	if remoteErr != nil {
		h.logger.Warnw("remote history unavailable", "user", userID, "err", remoteErr)
		if localErr != nil {
			return nil, errors.Join(localErr, remoteErr)
		}
	}
	return mergeHistory(local, remote), nil
}

func mergeHistory(local, remote []domain.SessionResult) []domain.SessionResult {
	seen := make(map[string]struct{}, len(local)+len(remote))
	merged := make([]domain.SessionResult, 0, len(local)+len(remote))
	for _, list := range [][]domain.SessionResult{local, remote} {
		for _, r := range list {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	slices.SortStableFunc(merged, func(a, b domain.SessionResult) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return merged
}
