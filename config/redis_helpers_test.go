package config

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// setRedisClient replaces the singleton client.
func setRedisClient(client *redis.Client) {
	redisClient = client
}

// resetRedis forgets the client and any remembered connection error so ConnectRedis runs again.
func resetRedis() {
	redisClient = nil
	redisErr = nil
	redisOnce = sync.Once{}
}
