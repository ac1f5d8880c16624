package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey = "chat:messages"
	seqDigits       = 20
)

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key is the sorted set holding messages. Defaults to "chat:messages".
	Key string
}

type redisMessage struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// RedisStore keeps messages in a sorted set scored by timestamp. Members are
// prefixed with a zero-padded sequence so equal timestamps keep insertion order.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisStore(rdb, opts.Key), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

// Insert adds msg to the sorted set.
func (s *RedisStore) Insert(ctx context.Context, msg Message) (string, error) {
	seq, err := s.rdb.Incr(ctx, s.key+":seq").Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate message sequence: %w", err)
	}

	ts := msg.Timestamp.UTC()
	rec := redisMessage{
		ID:        uuid.NewString(),
		ClientID:  msg.ClientID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: ts.Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	member := fmt.Sprintf("%0*d|%s", seqDigits, seq, body)
	if err := s.rdb.ZAdd(ctx, s.key, redis.Z{Score: float64(ts.UnixMicro()), Member: member}).Err(); err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return rec.ID, nil
}

// Query returns messages from the sorted set in timestamp order.
func (s *RedisStore) Query(ctx context.Context, q Query) ([]Message, error) {
	stop := int64(-1)
	if q.Limit > 0 {
		stop = int64(q.Limit) - 1
	}

	var (
		members []string
		err     error
	)
	if q.Order == Descending {
		members, err = s.rdb.ZRevRange(ctx, s.key, 0, stop).Result()
	} else {
		members, err = s.rdb.ZRange(ctx, s.key, 0, stop).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	msgs := make([]Message, 0, len(members))
	for _, member := range members {
		msg, err := decodeRedisMember(member)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func decodeRedisMember(member string) (Message, error) {
	_, body, ok := strings.Cut(member, "|")
	if !ok {
		return Message{}, fmt.Errorf("malformed message member %q", member)
	}

	var rec redisMessage
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("failed to decode message timestamp: %w", err)
	}
	return Message{
		ID:        rec.ID,
		ClientID:  rec.ClientID,
		Username:  rec.Username,
		Text:      rec.Text,
		Timestamp: ts.UTC(),
	}, nil
}
