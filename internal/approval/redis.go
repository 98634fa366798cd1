package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 16

// RedisStore shares actions between gateway processes. Each record lives
// under <prefix>action:<id>; pending ids are indexed in a sorted set scored
// by creation time. Read-modify-write runs inside WATCH/MULTI.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	opts   storeOptions
}

// DialRedis connects and pings, so callers can fail fast on a bad address.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	slog.Info("Redis connected", "addr", addr, "db", db)
	return rdb, nil
}

// NewRedisStore wraps an established client.
func NewRedisStore(rdb *redis.Client, prefix string, opts ...Option) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, opts: applyOptions(opts)}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) actionKey(id string) string { return s.prefix + "action:" + id }
func (s *RedisStore) pendingKey() string        { return s.prefix + "pending" }

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, id string) (*Action, error) {
	raw, err := c.Get(ctx, s.actionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode action %s: %w", id, err)
	}
	return &a, nil
}

// update runs fn against the current record for id inside an optimistic
// transaction. fn returns the record to write, or nil to leave it as is.
func (s *RedisStore) update(ctx context.Context, id string, fn func(cur *Action) (*Action, error)) (*Action, error) {
	key := s.actionKey(id)
	var written *Action
	txf := func(tx *redis.Tx) error {
		written = nil
		cur, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode action %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if next.Status == StatusPending {
				pipe.ZAdd(ctx, s.pendingKey(), redis.Z{Score: float64(next.CreatedAt.UnixNano()), Member: id})
			} else {
				pipe.ZRem(ctx, s.pendingKey(), id)
			}
			return nil
		})
		if err == nil {
			written = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return written, err
	}
	return nil, fmt.Errorf("action %s: too much contention", id)
}

// Request registers id as pending.
func (s *RedisStore) Request(ctx context.Context, id, description string, details map[string]any) (Action, error) {
	if strings.TrimSpace(id) == "" {
		return Action{}, fmt.Errorf("%w: empty action_id", ErrInvalidAction)
	}
	a, err := s.update(ctx, id, func(cur *Action) (*Action, error) {
		if cur != nil && cur.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrConflict, id, cur.Status)
		}
		return &Action{
			ID:          id,
			Description: description,
			Details:     maps.Clone(details),
			Status:      StatusPending,
			CreatedAt:   s.opts.now(),
		}, nil
	})
	if err != nil {
		return Action{}, err
	}
	slog.Info("Confirmation requested", "action_id", id, "description", description)
	s.observe(ctx, *a)
	return *a, nil
}

// Status returns the current record, or a StatusNotFound record.
func (s *RedisStore) Status(ctx context.Context, id string) (Action, error) {
	a, err := s.load(ctx, s.rdb, id)
	if err != nil {
		return Action{}, err
	}
	if a == nil {
		return notFound(id), nil
	}
	return *a, nil
}

// Decide records a human decision on a pending action.
func (s *RedisStore) Decide(ctx context.Context, id string, confirmed bool) (Action, error) {
	var current Action
	a, err := s.update(ctx, id, func(cur *Action) (*Action, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		current = *cur
		if cur.Status.Terminal() {
			return nil, nil
		}
		next := *cur
		next.Status = StatusDenied
		if confirmed {
			next.Status = StatusConfirmed
		}
		now := s.opts.now()
		next.DecidedAt = &now
		return &next, nil
	})
	if err != nil {
		return Action{}, err
	}
	if a == nil {
		slog.Debug("Decision ignored, action already terminal", "action_id", id, "status", current.Status)
		return current, nil
	}
	slog.Info("Confirmation decided", "action_id", id, "status", a.Status)
	s.observe(ctx, *a)
	return *a, nil
}

// Pending lists pending actions, oldest first.
func (s *RedisStore) Pending(ctx context.Context) ([]Action, error) {
	ids, err := s.rdb.ZRange(ctx, s.pendingKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Action, 0, len(ids))
	for _, id := range ids {
		a, err := s.load(ctx, s.rdb, id)
		if err != nil {
			return nil, err
		}
		// The index can briefly lag a concurrent decision.
		if a == nil || a.Status != StatusPending {
			continue
		}
		out = append(out, *a)
	}
	sortActions(out)
	return out, nil
}

// Expire times out pending actions created before cutoff.
func (s *RedisStore) Expire(ctx context.Context, cutoff time.Time) ([]Action, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.pendingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", cutoff.UnixNano()),
	}).Result()
	if err != nil {
		return nil, err
	}
	var expired []Action
	for _, id := range ids {
		a, err := s.update(ctx, id, func(cur *Action) (*Action, error) {
			if cur == nil || cur.Status != StatusPending || !cur.CreatedAt.Before(cutoff) {
				return nil, nil
			}
			next := *cur
			next.Status = StatusTimeout
			now := s.opts.now()
			next.DecidedAt = &now
			return &next, nil
		})
		if err != nil {
			return expired, err
		}
		if a == nil {
			continue
		}
		slog.Info("Confirmation expired", "action_id", id)
		s.observe(ctx, *a)
		expired = append(expired, *a)
	}
	return expired, nil
}

func (s *RedisStore) observe(ctx context.Context, a Action) {
	pending := -1
	if n, err := s.rdb.ZCard(ctx, s.pendingKey()).Result(); err == nil {
		pending = int(n)
	}
	s.opts.observe(ctx, a, pending)
}
