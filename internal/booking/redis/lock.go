package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis serializes state transitions per booking: whoever holds the lock key
// is the only writer allowed to commit a transition for that booking.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// getLockDuration returns the booking lock TTL from environment variables or the default value
func (r *Redis) getLockDuration() time.Duration {
	defaultDuration := 30 * time.Second

	lockTTLStr := os.Getenv("BOOKING_LOCK_TTL_SECONDS")
	if lockTTLStr == "" {
		return defaultDuration
	}

	lockTTLSec, err := strconv.Atoi(lockTTLStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid BOOKING_LOCK_TTL_SECONDS value '" + lockTTLStr + "', using default 30 seconds")
		return defaultDuration
	}

	return time.Duration(lockTTLSec) * time.Second
}

// LockBooking acquires the transition lock for a booking. The token
// identifies the owner so an unrelated caller can never release it.
func (r *Redis) LockBooking(ctx context.Context, bookingID, token string) (bool, error) {
	key := "booking_lock:" + bookingID
	ok, err := r.Client.SetNX(ctx, key, token, r.getLockDuration()).Result()
	return ok, err
}

// UnlockBooking releases the transition lock if the token still owns it.
func (r *Redis) UnlockBooking(ctx context.Context, bookingID, token string) error {
	key := fmt.Sprintf("booking_lock:%s", bookingID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
