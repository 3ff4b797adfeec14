package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ManuelReschke/TrialFunnel/internal/pkg/config"
	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"
)

// SetupCache connects the Redis client shared by the chat job queue and, on
// other database indexes, the session and limiter storages.
func SetupCache(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.CacheHost, cfg.CachePort),
		Password: cfg.CachePassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis: %v", err)
	} else {
		log.Infof("[Cache] Connected to Redis: %s", pong)
	}
	return client
}

// StorageConfig derives a fiber storage config for database from the shared client.
func StorageConfig(c *redis.Client, database int) redisstorage.Config {
	host, port := "127.0.0.1", 6379
	opts := c.Options()
	if opts.Addr != "" {
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if parsed, e := strconv.Atoi(p); e == nil {
				port = parsed
			}
		} else {
			host = opts.Addr
		}
	}
	return redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: opts.Username,
		Password: opts.Password,
		Database: database,
		Reset:    false,
	}
}

// NewStorage opens a fiber storage on database of the shared Redis server.
func NewStorage(c *redis.Client, database int) *redisstorage.Storage {
	return redisstorage.New(StorageConfig(c, database))
}
