package traveltime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"freightplan/internal/metrics"
	"freightplan/internal/opt"
)

// RedisCache memoizes known lane durations of another Provider.
type RedisCache struct {
	Next   Provider
	Client *redis.Client
	TTL    time.Duration
	// Profile namespaces keys, e.g. by ORS routing profile.
	Profile string
}

// NewRedisCache parses url and wraps next.
func NewRedisCache(url string, next Provider, ttl time.Duration) (*RedisCache, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Next: next, Client: redis.NewClient(o), TTL: ttl, Profile: next.Name()}, nil
}

func (c *RedisCache) Name() string { return c.Next.Name() + "+redis" }

// CacheKey is the Redis key for a lane at 5-decimal precision.
func CacheKey(profile string, from, to opt.Location) string {
	return fmt.Sprintf("tt:%s:%.5f,%.5f:%.5f,%.5f", profile, from.Lat, from.Lng, to.Lat, to.Lng)
}

type cachedRoute struct {
	Hours    float64      `json:"h"`
	Geometry [][2]float64 `json:"g,omitempty"`
}

func (c *RedisCache) Route(ctx context.Context, from, to opt.Location) (Route, error) {
	key := CacheKey(c.Profile, from, to)
	raw, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cr cachedRoute
		if json.Unmarshal(raw, &cr) == nil {
			metrics.TravelTimeCache.WithLabelValues("hit").Inc()
			return Route{Hours: cr.Hours, Known: true, Geometry: cr.Geometry}, nil
		}
	case !errors.Is(err, redis.Nil):
		// Cache outages fall through to the provider.
		log.Printf("traveltime cache get %s: %v", key, err)
	}
	metrics.TravelTimeCache.WithLabelValues("miss").Inc()

	r, err := c.Next.Route(ctx, from, to)
	if err != nil || !r.Known {
		return r, err
	}
	b, _ := json.Marshal(cachedRoute{Hours: r.Hours, Geometry: r.Geometry})
	if err := c.Client.Set(ctx, key, b, c.TTL).Err(); err != nil {
		log.Printf("traveltime cache set %s: %v", key, err)
	}
	return r, nil
}

func (c *RedisCache) Close() error { return c.Client.Close() }
