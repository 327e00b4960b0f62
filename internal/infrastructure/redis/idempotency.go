package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Deduplicator claims request or message ids so that a retried delivery is
// processed once.
type Deduplicator struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewDeduplicator(client RedisClient, prefix string, ttl time.Duration) *Deduplicator {
	return &Deduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *Deduplicator) key(id string) string {
	return fmt.Sprintf("%s:%s", d.prefix, id)
}

// Claim returns false when id was already claimed and not released.
func (d *Deduplicator) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(id), "pending", d.ttl)
	if err != nil {
		slog.Error("failed to claim key", "key", d.key(id), "error", err)
		return false, err
	}
	return ok, nil
}

// Complete marks a claimed id as processed.
func (d *Deduplicator) Complete(ctx context.Context, id string) {
	if err := d.client.Set(ctx, d.key(id), "done", d.ttl); err != nil {
		slog.Error("failed to mark key done", "key", d.key(id), "error", err)
	}
}

// Release drops a claim so that a later retry can process id again.
func (d *Deduplicator) Release(ctx context.Context, id string) {
	if err := d.client.Del(ctx, d.key(id)); err != nil {
		slog.Error("failed to release key", "key", d.key(id), "error", err)
	}
}
