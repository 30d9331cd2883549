package runqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nagare-ai/nagare/internal/observability"
	"github.com/nagare-ai/nagare/internal/tracing"
)

// Task is an operation serialized on a lane.
type Task func(ctx context.Context) (interface{}, error)

type result struct {
	value interface{}
	err   error
}

type job struct {
	ctx        context.Context
	task       Task
	enqueuedAt time.Time
	result     chan result
}

type laneState struct {
	queue   []*job
	running bool
}

// Queue serializes tasks per lane: within one lane tasks run one at a
// time in FIFO order, while distinct lanes run concurrently.
type Queue struct {
	lanes  map[string]*laneState
	closed bool
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// New creates an empty queue. Lanes are created on first use.
func New() *Queue {
	observability.EnsureRegistered()
	return &Queue{lanes: make(map[string]*laneState)}
}

// Do enqueues the task on the lane and blocks until it completes. A
// caller whose context expires while queued gets the context error; the
// task itself is skipped once its turn comes.
func (q *Queue) Do(ctx context.Context, lane string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"nagare.runqueue",
		"runqueue.do",
		attribute.String("lane", lane),
	)
	defer span.End()

	j := &job{
		ctx:        ctx,
		task:       task,
		enqueuedAt: time.Now(),
		result:     make(chan result, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("runqueue is closed")
	}

	ls, ok := q.lanes[lane]
	if !ok {
		ls = &laneState{}
		q.lanes[lane] = ls
	}
	ls.queue = append(ls.queue, j)
	depth := len(ls.queue)

	q.wg.Add(1)
	if !ls.running {
		ls.running = true
		go q.drain(lane)
	}
	q.mu.Unlock()

	observability.RecordQueueEnqueue(lane, depth)
	log.Debug().Str("lane", lane).Int("depth", depth).Msg("Task enqueued")

	select {
	case r := <-j.result:
		if r.err != nil {
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
		}
		return r.value, r.err
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	}
}

// Depth returns how many tasks are queued or running on a lane.
func (q *Queue) Depth(lane string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	ls, ok := q.lanes[lane]
	if !ok {
		return 0
	}
	n := len(ls.queue)
	if ls.running {
		n++
	}
	return n
}

// Close rejects new tasks and waits for in-flight ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
}

// drain runs queued tasks for one lane until the lane is empty.
func (q *Queue) drain(lane string) {
	for {
		q.mu.Lock()
		ls := q.lanes[lane]
		if len(ls.queue) == 0 {
			ls.running = false
			q.mu.Unlock()
			return
		}
		j := ls.queue[0]
		ls.queue = ls.queue[1:]
		depth := len(ls.queue)
		q.mu.Unlock()

		wait := time.Since(j.enqueuedAt)
		observability.RecordQueueWait(lane, wait, depth)

		// The caller may have given up while queued.
		if err := j.ctx.Err(); err != nil {
			j.result <- result{err: err}
			q.wg.Done()
			continue
		}

		logger := tracing.LoggerFromContext(j.ctx, log.Logger)
		logger.Debug().Str("lane", lane).Dur("wait", wait).Msg("Task started")

		start := time.Now()
		value, err := j.task(j.ctx)

		if err != nil {
			logger.Error().Str("lane", lane).Dur("duration", time.Since(start)).Err(err).Msg("Task failed")
		} else {
			logger.Debug().Str("lane", lane).Dur("duration", time.Since(start)).Msg("Task completed")
		}

		j.result <- result{value: value, err: err}
		q.wg.Done()
	}
}
