package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	engsync "github.com/hyperengineering/fieldsync/internal/sync"
	"golang.org/x/sync/errgroup"
)

// SyncResult combines one push run and one pull run.
type SyncResult struct {
	Push     *engsync.PushResult `json:"push"`
	Pull     *engsync.PullResult `json:"pull"`
	Duration time.Duration       `json:"duration"`
}

// Syncer runs push and pull together. They touch disjoint bookkeeping
// (outbox vs checkpoints) and run independently: a failure in one
// direction never cancels or hides the other.
type Syncer struct {
	push *PushWorker
	pull *PullEngine
}

// NewSyncer creates a syncer over the given workers.
func NewSyncer(push *PushWorker, pull *PullEngine) *Syncer {
	return &Syncer{push: push, pull: pull}
}

// RunOnce runs one push and one pull concurrently and waits for both.
// Each direction reports its own summary; the returned error joins the
// failures of either.
func (s *Syncer) RunOnce(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	var pushErr, pullErr error
	var g errgroup.Group
	g.Go(func() error {
		result.Push, pushErr = s.push.Run(ctx)
		if pushErr != nil {
			pushErr = fmt.Errorf("push: %w", pushErr)
		}
		return nil
	})
	g.Go(func() error {
		result.Pull, pullErr = s.pull.Run(ctx)
		if pullErr != nil {
			pullErr = fmt.Errorf("pull: %w", pullErr)
		}
		return nil
	})
	_ = g.Wait()

	result.Duration = time.Since(start)
	return result, errors.Join(pushErr, pullErr)
}
