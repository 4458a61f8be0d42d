package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pending is a callback whose storage write failed and waits for a retry.
type Pending struct {
	Observation Observation `json:"observation"`
	Attempts    int         `json:"attempts"`
	NextAttempt time.Time   `json:"next_attempt"`
	LastError   string      `json:"last_error,omitempty"`
}

// Spool is a FIFO of pending callbacks. Pop returns nil when empty.
type Spool interface {
	Push(ctx context.Context, p *Pending) error
	Pop(ctx context.Context) (*Pending, error)
	Len(ctx context.Context) (int64, error)
}

type MemorySpool struct {
	mu    sync.Mutex
	items []*Pending
}

func NewMemorySpool() *MemorySpool {
	return &MemorySpool{}
}

func (s *MemorySpool) Push(_ context.Context, p *Pending) error {
	s.mu.Lock()
	s.items = append(s.items, p)
	s.mu.Unlock()
	return nil
}

func (s *MemorySpool) Pop(_ context.Context) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil, nil
	}
	p := s.items[0]
	s.items[0] = nil
	s.items = s.items[1:]
	return p, nil
}

func (s *MemorySpool) Len(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items)), nil
}

// RedisSpool keeps pending callbacks in a Redis list so they survive a
// restart of the listener.
type RedisSpool struct {
	client *redis.Client
	key    string
}

func NewRedisSpool(client *redis.Client, key string) *RedisSpool {
	return &RedisSpool{client: client, key: key}
}

// DialRedis parses url and checks connectivity.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rc, nil
}

func (s *RedisSpool) Push(ctx context.Context, p *Pending) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	return s.client.RPush(ctx, s.key, data).Err()
}

func (s *RedisSpool) Pop(ctx context.Context) (*Pending, error) {
	data, err := s.client.LPop(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := &Pending{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return p, nil
}

func (s *RedisSpool) Len(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.key).Result()
}
