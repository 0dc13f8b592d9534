package quotations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "quotations:version"

// listPage is the cached representation of one listing page.
type listPage struct {
	Items []Quotation `json:"items"`
	Total int         `json:"total"`
}

// Cache is a version-bumped redis cache for the pending-payments listing.
// Every mutation bumps the version, invalidating all cached pages at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchList loads a cached listing page or populates it using the loader.
func (c *Cache) FetchList(ctx context.Context, req ListRequest, dest *listPage, loader func(context.Context) (listPage, error)) error {
	if c == nil || c.client == nil {
		page, err := loader(ctx)
		if err != nil {
			return err
		}
		*dest = page
		return nil
	}
	ver, err := c.version(ctx)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s:%d", listKey(req), ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	page, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	*dest = page
	return nil
}

// Bump invalidates all cached pages by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func listKey(req ListRequest) string {
	parts := []string{"quotations", "list",
		boolToken(req.Paid), boolToken(req.Delivered), req.Search,
		timeToken(req.From), timeToken(req.To),
		fmt.Sprintf("%d:%d", req.Page, req.PerPage),
	}
	return strings.Join(parts, ":")
}

func boolToken(v *bool) string {
	if v == nil {
		return "any"
	}
	return fmt.Sprintf("%t", *v)
}

func timeToken(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
