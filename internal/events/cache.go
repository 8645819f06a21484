package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	eventKeyPrefix = "event:"
	ongoingKey     = "events:ongoing"
)

// Cache is a read-through Redis copy of catalog reads. It is never consulted by checkout.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{Client: client, TTL: ttl}
}

func (c *Cache) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, raw, c.TTL).Err()
}

func (c *Cache) GetEvent(ctx context.Context, id string) (*models.Event, bool, error) {
	var event models.Event
	ok, err := c.getJSON(ctx, eventKeyPrefix+id, &event)
	if !ok || err != nil {
		return nil, false, err
	}
	return &event, true, nil
}

func (c *Cache) SetEvent(ctx context.Context, event *models.Event) error {
	return c.setJSON(ctx, eventKeyPrefix+event.ID, event)
}

func (c *Cache) GetOngoing(ctx context.Context) ([]models.Event, bool, error) {
	var events []models.Event
	ok, err := c.getJSON(ctx, ongoingKey, &events)
	return events, ok, err
}

func (c *Cache) SetOngoing(ctx context.Context, events []models.Event) error {
	return c.setJSON(ctx, ongoingKey, events)
}

// Invalidate drops the event and the ongoing listing that embeds it.
func (c *Cache) Invalidate(ctx context.Context, eventID string) error {
	return c.Client.Del(ctx, eventKeyPrefix+eventID, ongoingKey).Err()
}
