package locks

import (
	"time"

	"conveyor/internal/redis"
)

// NewManagerFor picks a lock manager for the deployment shape: a
// redsync-backed manager when a Redis client is available, otherwise the
// in-process FIFO manager.
func NewManagerFor(redisClient *redis.Client, expiry time.Duration) (Manager, error) {
	if redisClient == nil {
		return NewLocalManager(), nil
	}
	return NewRedsyncManager(redisClient, expiry)
}
