package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"mjolobid-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// BroadcastJob sends the same notification to many users
type BroadcastJob struct {
	UserIDs []string
	Type    string
	Title   string
	Message string
}

// BroadcastResult is reported once a job has been drained
type BroadcastResult struct {
	Total  int
	Sent   int64
	Failed int64
}

// BroadcastQueue is a bounded queue of bulk notification jobs drained by a fixed worker pool
type BroadcastQueue struct {
	notifier    Notifier
	jobs        chan BroadcastJob
	workers     int
	parallelism int
	onDone      func(BroadcastResult)

	wg sync.WaitGroup
}

// NewBroadcastQueue creates a queue holding at most size jobs. Each job sends to at most
// parallelism recipients at a time.
func NewBroadcastQueue(notifier Notifier, workers, size, parallelism int) *BroadcastQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &BroadcastQueue{
		notifier:    notifier,
		jobs:        make(chan BroadcastJob, size),
		workers:     workers,
		parallelism: parallelism,
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (q *BroadcastQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.work(ctx, id)
		}(i)
	}
	log.Info().Int("workers", q.workers).Int("queue_size", cap(q.jobs)).Msg("Broadcast workers started")
}

// Wait blocks until every worker has stopped
func (q *BroadcastQueue) Wait() {
	q.wg.Wait()
}

// Enqueue adds a job without blocking
func (q *BroadcastQueue) Enqueue(job BroadcastJob) error {
	if len(job.UserIDs) == 0 {
		return fmt.Errorf("%w: broadcast has no recipients", models.ErrValidation)
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: %d broadcast jobs pending", models.ErrQueueFull, cap(q.jobs))
	}
}

func (q *BroadcastQueue) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			res := q.run(ctx, job)
			log.Info().
				Int("worker", id).
				Str("type", job.Type).
				Int("recipients", res.Total).
				Int64("sent", res.Sent).
				Int64("failed", res.Failed).
				Msg("Broadcast job finished")
			if q.onDone != nil {
				q.onDone(res)
			}
		}
	}
}

func (q *BroadcastQueue) run(ctx context.Context, job BroadcastJob) BroadcastResult {
	var sent, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.parallelism)
	for _, userID := range job.UserIDs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := retry.Do(gctx, deliveryBackoff(), func(ctx context.Context) error {
				if err := q.notifier.Notify(ctx, NotificationInput{
					UserID:  userID,
					Type:    job.Type,
					Title:   job.Title,
					Message: job.Message,
				}); err != nil {
					return retry.RetryableError(err)
				}
				return nil
			})
			if err != nil {
				failed.Add(1)
				log.Warn().Err(err).Str("user_id", userID).Msg("Broadcast delivery failed")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return BroadcastResult{Total: len(job.UserIDs), Sent: sent.Load(), Failed: failed.Load()}
}
