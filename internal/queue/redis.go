package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// reserveScript returns reservations older than the lease cutoff (ARGV[2]) to the
// ready set, then moves the first eligible ready id into the reserved set.
var reserveScript = redis.NewScript(`
	local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[2])
	for _, id in ipairs(expired) do
		redis.call("ZREM", KEYS[2], id)
		redis.call("ZADD", KEYS[1], ARGV[1], id)
	end
	local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
	if #ids == 0 then
		return false
	end
	local id = ids[1]
	redis.call("ZREM", KEYS[1], id)
	redis.call("ZADD", KEYS[2], ARGV[1], id)
	return id
`)

// retryScript re-readies a failed task only if it is still in the failed set.
var retryScript = redis.NewScript(`
	if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call("HSET", KEYS[3], ARGV[1], ARGV[2])
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
	return 1
`)

var purgeFailedScript = redis.NewScript(`
	local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
	for _, id in ipairs(ids) do
		redis.call("HDEL", KEYS[2], id)
	end
	redis.call("DEL", KEYS[1])
	return #ids
`)

// RedisQueue is a Queue stored in Redis: a hash of task bodies plus sorted sets
// for ready (scored by eligibility), reserved and failed ids.
type RedisQueue struct {
	client    *redis.Client
	keyPrefix string
	opts      Options
	now       func() time.Time
}

// NewRedisQueue creates a Redis-backed queue on a shared client.
func NewRedisQueue(client *redis.Client, keyPrefix string, opts Options) *RedisQueue {
	if keyPrefix == "" {
		keyPrefix = "stocksync:queue"
	}
	log.Printf("[RedisQueue] Using prefix:%s", keyPrefix)
	return &RedisQueue{
		client:    client,
		keyPrefix: keyPrefix,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

func (q *RedisQueue) tasksKey() string    { return q.keyPrefix + ":tasks" }
func (q *RedisQueue) readyKey() string    { return q.keyPrefix + ":ready" }
func (q *RedisQueue) reservedKey() string { return q.keyPrefix + ":reserved" }
func (q *RedisQueue) failedKey() string   { return q.keyPrefix + ":failed" }

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Enqueue adds a task to the ready set.
func (q *RedisQueue) Enqueue(ctx context.Context, task *model.SyncTask) error {
	if task.ID == "" {
		task.ID = uid.NewTaskID()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = q.now().UTC()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.tasksKey(), task.ID, data)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: score(eligibleAt(task)), Member: task.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// Reserve atomically claims the next eligible task after reclaiming expired reservations.
func (q *RedisQueue) Reserve(ctx context.Context) (*model.SyncTask, error) {
	now := q.now()
	id, err := reserveScript.Run(ctx, q.client,
		[]string{q.readyKey(), q.reservedKey()}, score(now), score(now.Add(-q.opts.Lease))).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		// Body vanished (deleted concurrently); drop the dangling id.
		q.client.ZRem(ctx, q.reservedKey(), id)
		return nil, nil
	}
	reservedAt := now.UTC()
	task.ReservedAt = &reservedAt
	return task, nil
}

// Complete removes a finished task.
func (q *RedisQueue) Complete(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	del := pipe.HDel(ctx, q.tasksKey(), id)
	pipe.ZRem(ctx, q.reservedKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Release reschedules a task after its backoff delay.
func (q *RedisQueue) Release(ctx context.Context, task *model.SyncTask) error {
	eligibleAt := q.now().Add(Backoff(q.opts.BackoffBase, q.opts.BackoffMax, task.Attempts)).UTC()
	task.NextEligibleAt = &eligibleAt
	task.ReservedAt = nil

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.tasksKey(), task.ID, data)
	pipe.ZRem(ctx, q.reservedKey(), task.ID)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: score(eligibleAt), Member: task.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// Bury dead-letters a task.
func (q *RedisQueue) Bury(ctx context.Context, task *model.SyncTask) error {
	failedAt := q.now().UTC()
	task.FailedAt = &failedAt
	task.ReservedAt = nil
	task.NextEligibleAt = nil

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.tasksKey(), task.ID, data)
	pipe.ZRem(ctx, q.reservedKey(), task.ID)
	pipe.ZRem(ctx, q.readyKey(), task.ID)
	pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: score(failedAt), Member: task.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// PendingCount returns the number of ready and reserved tasks.
func (q *RedisQueue) PendingCount(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.ZCard(ctx, q.readyKey())
	reserved := pipe.ZCard(ctx, q.reservedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return ready.Val() + reserved.Val(), nil
}

// Pending lists reserved tasks followed by ready tasks in eligibility order.
func (q *RedisQueue) Pending(ctx context.Context) ([]model.SyncTask, error) {
	reserved, err := q.client.ZRangeWithScores(ctx, q.reservedKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ready, err := q.client.ZRange(ctx, q.readyKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	reservedAt := make(map[string]time.Time, len(reserved))
	ids := make([]string, 0, len(reserved)+len(ready))
	for _, z := range reserved {
		id := z.Member.(string)
		reservedAt[id] = time.UnixMilli(int64(z.Score)).UTC()
		ids = append(ids, id)
	}
	ids = append(ids, ready...)

	tasks, err := q.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if at, ok := reservedAt[tasks[i].ID]; ok {
			tasks[i].ReservedAt = &at
		}
	}
	return tasks, nil
}

// Failed lists dead-lettered tasks, oldest failure first.
func (q *RedisQueue) Failed(ctx context.Context) ([]model.SyncTask, error) {
	ids, err := q.client.ZRange(ctx, q.failedKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return q.loadMany(ctx, ids)
}

// Retry moves a failed task back to the ready set.
func (q *RedisQueue) Retry(ctx context.Context, id string) error {
	task, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}
	resetForRetry(task)

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	moved, err := retryScript.Run(ctx, q.client,
		[]string{q.failedKey(), q.readyKey(), q.tasksKey()},
		id, data, score(q.now())).Int()
	if err != nil {
		return err
	}
	if moved == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete removes a task in any state.
func (q *RedisQueue) Delete(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	del := pipe.HDel(ctx, q.tasksKey(), id)
	pipe.ZRem(ctx, q.readyKey(), id)
	pipe.ZRem(ctx, q.reservedKey(), id)
	pipe.ZRem(ctx, q.failedKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// PurgeFailed removes all failed tasks.
func (q *RedisQueue) PurgeFailed(ctx context.Context) (int64, error) {
	n, err := purgeFailedScript.Run(ctx, q.client, []string{q.failedKey(), q.tasksKey()}).Int64()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*model.SyncTask, error) {
	data, err := q.client.HGet(ctx, q.tasksKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var task model.SyncTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	return &task, nil
}

func (q *RedisQueue) loadMany(ctx context.Context, ids []string) ([]model.SyncTask, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := q.client.HMGet(ctx, q.tasksKey(), ids...).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]model.SyncTask, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var task model.SyncTask
		if err := json.Unmarshal([]byte(s), &task); err != nil {
			log.Printf("[RedisQueue] Error unmarshaling %s: %v", ids[i], err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

var _ Queue = (*RedisQueue)(nil)
