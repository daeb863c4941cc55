package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "gt06:device:"

type cacheEntry struct {
	DeviceID string `json:"deviceId"`
}

// Cached keeps resolved identifiers in Redis in front of a slower directory. Only successful lookups
// are cached. Redis failures are logged and the inner directory answers instead.
type Cached struct {
	Inner  Directory
	Client *redis.Client
	TTL    time.Duration
}

func NewCached(inner Directory, client *redis.Client, ttl time.Duration) *Cached {
	return &Cached{Inner: inner, Client: client, TTL: ttl}
}

// ConnectRedis parses a redis:// url and pings the server.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse redis url")
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis")
	}
	logger.Info("Redis cache initialized")
	return client, nil
}

func (c *Cached) Lookup(ctx context.Context, imei string) (string, error) {
	key := cacheKeyPrefix + imei

	data, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cacheEntry
		if err := json.Unmarshal(data, &entry); err == nil && entry.DeviceID != "" {
			return entry.DeviceID, nil
		}
		logger.Warn("discarding unreadable cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		logger.Warn("device cache unavailable", zap.String("imei", imei), zap.Error(err))
	}

	deviceID, err := c.Inner.Lookup(ctx, imei)
	if err != nil {
		return "", err
	}

	data, err = json.Marshal(cacheEntry{DeviceID: deviceID})
	if err == nil {
		err = c.Client.Set(ctx, key, data, c.TTL).Err()
	}
	if err != nil {
		logger.Warn("failed to cache device", zap.String("imei", imei), zap.Error(err))
	}
	return deviceID, nil
}
