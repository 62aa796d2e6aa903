package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskAlreadyExists = errors.New("task already exists")
	ErrMetadataNotFound  = errors.New("task metadata not found")
)

const (
	taskKeyPrefix     = "task:"
	metadataKeyPrefix = "task_metadata:"
)

// Store is the task registry contract consumed by the front door, the
// admission controller and the executor.
type Store interface {
	Create(ctx context.Context, rec *TaskRecord) error
	Exists(ctx context.Context, taskID string) (bool, error)
	Get(ctx context.Context, taskID string) (*TaskRecord, error)
	SetStatus(ctx context.Context, taskID string, status TaskStatus, progress int, message string) error
	SetProgress(ctx context.Context, taskID string, progress int, message string) error
	SetError(ctx context.Context, taskID string, errMsg, errCode string) error
	SetCompleted(ctx context.Context, taskID string, metadata []byte) error
	GetMetadata(ctx context.Context, taskID string) ([]byte, error)
	Delete(ctx context.Context, taskID string) error
	CountActive(ctx context.Context) (int, error)
}

// guardedUpdate merges fields into the task hash unless the stored status is
// already terminal. Terminal states must win over stray progress updates, so
// the check and the write happen in one script.
var guardedUpdate = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'completed' or status == 'failed' then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return 1
`)

// Connect opens the shared Redis client owned by the process.
func Connect(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func taskKey(taskID string) string     { return taskKeyPrefix + taskID }
func metadataKey(taskID string) string { return metadataKeyPrefix + taskID }

func (s *RedisStore) Create(ctx context.Context, rec *TaskRecord) error {
	now := time.Now().UTC()
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Message == "" {
		rec.Message = "Task created"
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	key := taskKey(rec.ID)

	// HSETNX on the id field doubles as the existence check, so a colliding
	// create never clobbers a live record.
	created, err := s.client.HSetNX(ctx, key, "task_id", rec.ID).Result()
	if err != nil {
		return fmt.Errorf("create task %s: %w", rec.ID, err)
	}
	if !created {
		return ErrTaskAlreadyExists
	}

	if err := s.client.HSet(ctx, key, fieldMap(rec)).Err(); err != nil {
		return fmt.Errorf("create task %s: %w", rec.ID, err)
	}

	s.logger.Info("Task created",
		zap.String("task_id", rec.ID),
		zap.String("status", string(rec.Status)),
	)

	return nil
}

func (s *RedisStore) Exists(ctx context.Context, taskID string) (bool, error) {
	n, err := s.client.Exists(ctx, taskKey(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("check task %s: %w", taskID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (*TaskRecord, error) {
	fields, err := s.client.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}
	return recordFromMap(fields), nil
}

func (s *RedisStore) SetStatus(ctx context.Context, taskID string, status TaskStatus, progress int, message string) error {
	fields := map[string]string{
		"status":   string(status),
		"progress": strconv.Itoa(progress),
	}
	if message != "" {
		fields["message"] = message
	}
	return s.update(ctx, taskID, fields)
}

func (s *RedisStore) SetProgress(ctx context.Context, taskID string, progress int, message string) error {
	fields := map[string]string{
		"progress": strconv.Itoa(progress),
	}
	if message != "" {
		fields["message"] = message
	}
	return s.update(ctx, taskID, fields)
}

func (s *RedisStore) SetError(ctx context.Context, taskID string, errMsg, errCode string) error {
	fields := map[string]string{
		"status": string(StatusFailed),
		"error":  errMsg,
	}
	if errCode != "" {
		fields["error_code"] = errCode
	}

	if err := s.update(ctx, taskID, fields); err != nil {
		return err
	}

	s.logger.Error("Task failed",
		zap.String("task_id", taskID),
		zap.String("error_code", errCode),
		zap.String("error", errMsg),
	)

	return nil
}

func (s *RedisStore) SetCompleted(ctx context.Context, taskID string, metadata []byte) error {
	now := time.Now().UTC().Format(timeLayout)
	fields := map[string]string{
		"status":       string(StatusCompleted),
		"progress":     "100",
		"message":      "Task completed successfully",
		"completed_at": now,
	}

	applied, err := s.apply(ctx, taskID, fields)
	if err != nil {
		return err
	}
	if !applied {
		// Already terminal; the metadata written by the first completion stands.
		return nil
	}

	if len(metadata) > 0 {
		if err := s.client.Set(ctx, metadataKey(taskID), metadata, 0).Err(); err != nil {
			return fmt.Errorf("store metadata for task %s: %w", taskID, err)
		}
	}

	s.logger.Info("Task completed", zap.String("task_id", taskID))

	return nil
}

func (s *RedisStore) GetMetadata(ctx context.Context, taskID string) ([]byte, error) {
	data, err := s.client.Get(ctx, metadataKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("get metadata for task %s: %w", taskID, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, taskKey(taskID), metadataKey(taskID)).Err(); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	s.logger.Info("Task deleted", zap.String("task_id", taskID))
	return nil
}

func (s *RedisStore) CountActive(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, taskKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		status, err := s.client.HGet(ctx, iter.Val(), "status").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return 0, fmt.Errorf("count active tasks: %w", err)
		}
		switch TaskStatus(status) {
		case StatusPending, StatusQueued, StatusProcessing:
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return count, nil
}

func (s *RedisStore) update(ctx context.Context, taskID string, fields map[string]string) error {
	_, err := s.apply(ctx, taskID, fields)
	return err
}

// apply runs the guarded merge and reports whether the write was accepted.
func (s *RedisStore) apply(ctx context.Context, taskID string, fields map[string]string) (bool, error) {
	fields["updated_at"] = time.Now().UTC().Format(timeLayout)

	argv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		argv = append(argv, k, v)
	}

	res, err := guardedUpdate.Run(ctx, s.client, []string{taskKey(taskID)}, argv...).Int()
	if err != nil {
		return false, fmt.Errorf("update task %s: %w", taskID, err)
	}

	return res == 1, nil
}
