// Package notify fans lockdown evaluations out to downstream reviewers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"caregate/internal/domain"
)

// Notifier publishes a persisted lockdown run. Failures are reported to the
// caller but never undo the run.
type Notifier interface {
	PublishRun(ctx context.Context, run domain.LockdownRun) error
}

type Nop struct{}

func (Nop) PublishRun(context.Context, domain.LockdownRun) error { return nil }

const DefaultStream = "caregate:lockdown"

// RedisStream appends each run to a Redis stream with XADD, trimming the
// stream to roughly MaxLen entries.
type RedisStream struct {
	Client *redis.Client
	Stream string
	MaxLen int64
	Log    *zap.Logger
}

func NewRedisStream(addr, stream string, maxLen int64, log *zap.Logger) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStream{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Stream: stream,
		MaxLen: maxLen,
		Log:    log,
	}
}

func (r *RedisStream) PublishRun(ctx context.Context, run domain.LockdownRun) error {
	body, err := json.Marshal(run)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: r.Stream,
		Values: map[string]interface{}{
			"run_id":      run.ID,
			"case_id":     run.CaseID,
			"can_release": strconv.FormatBool(run.Result.CanRelease),
			"risk_level":  string(run.Result.RiskLevel),
			"data":        string(body),
		},
	}
	if r.MaxLen > 0 {
		args.MaxLen = r.MaxLen
		args.Approx = true
	}
	id, err := r.Client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish lockdown run: %w", err)
	}
	r.Log.Debug("lockdown published", zap.String("stream", r.Stream), zap.String("entry_id", id), zap.String("run_id", run.ID))
	return nil
}

// Recent returns up to count runs from the stream, newest first.
func (r *RedisStream) Recent(ctx context.Context, count int64) ([]domain.LockdownRun, error) {
	msgs, err := r.Client.XRevRangeN(ctx, r.Stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.LockdownRun, 0, len(msgs))
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		var run domain.LockdownRun
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", m.ID, err)
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *RedisStream) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *RedisStream) Close() error {
	return r.Client.Close()
}
