// Package notify publishes store changes and scheduled digests over Redis
// pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"steady/internal/core"
	"steady/internal/store"
)

const pingTimeout = 5 * time.Second

// ChangeEvent announces a committed store changeset.
type ChangeEvent struct {
	Version   uint64          `json:"version"`
	Appended  []core.PeriodID `json:"appended,omitempty"`
	Corrected []core.PeriodID `json:"corrected,omitempty"`
	At        time.Time       `json:"at"`
}

func NewChangeEvent(cs store.Changeset, at time.Time) ChangeEvent {
	ev := ChangeEvent{Version: cs.Version, At: at.UTC()}
	for _, p := range cs.Appended {
		ev.Appended = append(ev.Appended, p.ID)
	}
	for _, c := range cs.Corrections {
		ev.Corrected = append(ev.Corrected, c.PeriodID)
	}
	return ev
}

type RedisPublisher struct {
	client         *redis.Client
	digestChannel  string
	changesChannel string
}

// NewRedisPublisher connects to url and verifies the connection.
func NewRedisPublisher(ctx context.Context, url, digestChannel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.InfoContext(ctx, "Redis connected", "addr", opts.Addr, "channel", digestChannel)
	return NewPublisher(client, digestChannel), nil
}

func NewPublisher(client *redis.Client, digestChannel string) *RedisPublisher {
	return &RedisPublisher{
		client:         client,
		digestChannel:  digestChannel,
		changesChannel: digestChannel + ":changes",
	}
}

func (p *RedisPublisher) DigestChannel() string  { return p.digestChannel }
func (p *RedisPublisher) ChangesChannel() string { return p.changesChannel }

// PublishDigest sends v as JSON on the digest channel and returns the
// number of subscribers that received it.
func (p *RedisPublisher) PublishDigest(ctx context.Context, v any) (int64, error) {
	return p.publish(ctx, p.digestChannel, v)
}

// NotifyChange announces a committed changeset on the changes channel.
func (p *RedisPublisher) NotifyChange(ctx context.Context, cs store.Changeset) error {
	_, err := p.publish(ctx, p.changesChannel, NewChangeEvent(cs, time.Now()))
	return err
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	n, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return n, nil
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
