package liquidation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchFailure records one failed item of a bulk operation.
type BatchFailure struct {
	ID  string
	Err error
}

// PartialBatchError reports a bulk operation that did not fully succeed.
// There is no atomicity and no rollback: callers must re-fetch the list to
// learn the true resulting state rather than trust optimistic local state.
type PartialBatchError struct {
	Op        string
	Requested int
	Succeeded int
	Failed    []BatchFailure
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("liquidation: bulk %s: %d/%d succeeded, %d failed",
		e.Op, e.Succeeded, e.Requested, len(e.Failed))
}

// bulkFanOutLimit bounds in-flight requests per bulk call.
const bulkFanOutLimit = 8

// BulkArchive archives the given records as independent concurrent requests
// with no cross-request ordering guarantee. A mixed outcome is reported as a
// single *PartialBatchError; once issued, the batch cannot be cancelled.
func (s *Service) BulkArchive(ctx context.Context, ids []string) error {
	return s.bulkSetArchived(ctx, "archive", ids, true)
}

// BulkRestore is the inverse of BulkArchive with identical failure semantics.
func (s *Service) BulkRestore(ctx context.Context, ids []string) error {
	return s.bulkSetArchived(ctx, "restore", ids, false)
}

func (s *Service) bulkSetArchived(ctx context.Context, op string, ids []string, archived bool) error {
	if len(ids) == 0 {
		return fmt.Errorf("liquidation: bulk %s: no record ids", op)
	}

	var (
		mu     sync.Mutex
		failed []BatchFailure
	)

	// A bare Group (no derived context) so one failure does not cancel the
	// remaining requests; every item settles on its own.
	var g errgroup.Group
	g.SetLimit(bulkFanOutLimit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := s.repo.SetArchived(ctx, id, archived); err != nil {
				mu.Lock()
				failed = append(failed, BatchFailure{ID: id, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	// Per-item errors are collected above; Wait only joins the goroutines.
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	return &PartialBatchError{
		Op:        op,
		Requested: len(ids),
		Succeeded: len(ids) - len(failed),
		Failed:    failed,
	}
}
