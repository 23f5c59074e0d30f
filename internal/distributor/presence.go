package distributor

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceRegistry tracks which client routes each recipient currently has
// open. The transport collaborator reports them; the distributor only
// consults them for push suppression. Presence is advisory and never
// affects state machine correctness.
type PresenceRegistry interface {
	SetActiveRoutes(ctx context.Context, recipient string, routes []string) error
	ActiveRoutes(ctx context.Context, recipient string) ([]string, error)
}

// ViewingStaffSurface reports whether any active route is a canteen or
// admin view. A recipient looking at their own kitchen display does not
// also need a push about their own action.
func ViewingStaffSurface(routes []string) bool {
	for _, route := range routes {
		if strings.HasPrefix(route, "/canteen") || strings.HasPrefix(route, "/admin") {
			return true
		}
	}
	return false
}

// MemoryPresence is the single-node registry.
type MemoryPresence struct {
	mu     sync.RWMutex
	routes map[string][]string
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{routes: make(map[string][]string)}
}

func (p *MemoryPresence) SetActiveRoutes(_ context.Context, recipient string, routes []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(routes) == 0 {
		delete(p.routes, recipient)
		return nil
	}
	p.routes[recipient] = append([]string(nil), routes...)
	return nil
}

func (p *MemoryPresence) ActiveRoutes(_ context.Context, recipient string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.routes[recipient]...), nil
}

// RedisPresence shares presence across server nodes. Entries expire on
// their own so a crashed client cannot suppress pushes forever.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisPresence{client: client, ttl: ttl}
}

func presenceKey(recipient string) string {
	return "presence:" + recipient
}

func (p *RedisPresence) SetActiveRoutes(ctx context.Context, recipient string, routes []string) error {
	if len(routes) == 0 {
		return p.client.Del(ctx, presenceKey(recipient)).Err()
	}
	data, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, presenceKey(recipient), data, p.ttl).Err()
}

func (p *RedisPresence) ActiveRoutes(ctx context.Context, recipient string) ([]string, error) {
	data, err := p.client.Get(ctx, presenceKey(recipient)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var routes []string
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}
