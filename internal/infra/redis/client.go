// Package redis coordinates feeder replicas and fans the chain summary out
// to subscribers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LockKey  string        `yaml:"lock_key"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	Channel  string        `yaml:"channel"`
}

// Client wraps the writer lock and summary publishing.
type Client struct {
	rdb     *redis.Client
	owner   string
	lockKey string
	lockTTL time.Duration
	channel string
}

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		rdb:     rdb,
		owner:   uuid.NewString(),
		lockKey: cfg.LockKey,
		lockTTL: cfg.LockTTL,
		channel: cfg.Channel,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Owner identifies this process as a lock holder.
func (c *Client) Owner() string {
	return c.owner
}

// Acquire takes the writer lock, or extends it when this process already
// holds it. It reports false when another replica owns the lock.
func (c *Client) Acquire(ctx context.Context) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.lockKey, c.owner, c.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	if ok {
		return true, nil
	}
	return c.Refresh(ctx)
}

// Refresh extends the lock TTL if this process still owns it.
func (c *Client) Refresh(ctx context.Context) (bool, error) {
	n, err := refreshScript.Run(ctx, c.rdb, []string{c.lockKey}, c.owner, c.lockTTL.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("refresh lock failed: %w", err)
	}
	return n == 1, nil
}

// Release drops the lock if this process owns it.
func (c *Client) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{c.lockKey}, c.owner).Err(); err != nil {
		return fmt.Errorf("release lock failed: %w", err)
	}
	return nil
}

func summaryKey(network string) string {
	return fmt.Sprintf("chainstate:%s", network)
}

type summaryMessage struct {
	Network        string `json:"network"`
	PeakHeight     int64  `json:"peak_height"`
	EpochHeight    int64  `json:"epoch_height"`
	Difficulty     uint64 `json:"difficulty"`
	DifficultyPrev uint64 `json:"difficulty_prev"`
	Netspace       string `json:"netspace"`
	NetspacePrev   string `json:"netspace_prev"`
	SubSlotTime    int64  `json:"sub_slot_time"`
}

// Publish mirrors the summary into a hash and announces it on the channel.
func (c *Client) Publish(ctx context.Context, state *domain.ChainState) error {
	msg := summaryMessage{
		Network:        state.NetworkName,
		PeakHeight:     state.PeakHeight,
		EpochHeight:    state.EpochHeight,
		Difficulty:     state.DifficultyCurr,
		DifficultyPrev: state.DifficultyPrev,
		Netspace:       bigString(state.NetspaceCurr),
		NetspacePrev:   bigString(state.NetspacePrev),
		SubSlotTime:    state.SubSlotTime,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, summaryKey(state.NetworkName),
		"peak_height", strconv.FormatInt(msg.PeakHeight, 10),
		"epoch_height", strconv.FormatInt(msg.EpochHeight, 10),
		"difficulty", strconv.FormatUint(msg.Difficulty, 10),
		"difficulty_prev", strconv.FormatUint(msg.DifficultyPrev, 10),
		"netspace", msg.Netspace,
		"netspace_prev", msg.NetspacePrev,
		"sub_slot_time", strconv.FormatInt(msg.SubSlotTime, 10),
	)
	pipe.Publish(ctx, c.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish summary failed: %w", err)
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
