// Package cache keeps derived consensus results in Redis and fans out state
// change notifications across service instances via pub/sub.
// Keys used:
// - <prefix>:results:<chatID> -> json ConsensusResults
// - <prefix>:updates          -> pub/sub channel of events.Update
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sim31/fractalgram/internal/events"
	"github.com/sim31/fractalgram/internal/models"
)

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) resultsKey(chatID string) string {
	return fmt.Sprintf("%s:results:%s", c.prefix, chatID)
}

func (c *Cache) updatesChannel() string { return c.prefix + ":updates" }

func (c *Cache) SetResults(ctx context.Context, chatID string, res *models.ConsensusResults) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.resultsKey(chatID), b, c.ttl).Err()
}

func (c *Cache) GetResults(ctx context.Context, chatID string) (*models.ConsensusResults, bool, error) {
	b, err := c.client.Get(ctx, c.resultsKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var res models.ConsensusResults
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (c *Cache) InvalidateResults(ctx context.Context, chatID string) error {
	return c.client.Del(ctx, c.resultsKey(chatID)).Err()
}

func (c *Cache) PublishUpdate(ctx context.Context, u events.Update) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.updatesChannel(), b).Err()
}

// SubscribeUpdates delivers updates published by any instance until ctx is
// cancelled.
func (c *Cache) SubscribeUpdates(ctx context.Context, handle func(events.Update)) error {
	sub := c.client.Subscribe(ctx, c.updatesChannel())
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var u events.Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				continue
			}
			handle(u)
		}
	}
}
