package redis_client

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClientName is reported to Redis (CLIENT LIST) for every relay connection.
const ClientName = "roomrelay"

// Options describes the connection used by the peer bus.
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// redisOptions maps o onto go-redis settings. Every subscribed peer holds a
// dedicated pub/sub connection on top of the pool used for PUBLISH.
func (o Options) redisOptions() *redis.Options {
	maxPool := runtime.NumCPU() * 8
	if maxPool > 512 {
		maxPool = 512
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", o.Host, o.Port),
		Password:     o.Password,
		DB:           o.DB,
		ClientName:   ClientName,
		PoolSize:     maxPool,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// NewRedisClient returns a client for the relay's peer bus, verified with a PING.
func NewRedisClient(ctx context.Context, o Options) (*redis.Client, error) {
	rc := redis.NewClient(o.redisOptions())

	ctx, cancelFunc := context.WithTimeout(ctx, 5*time.Second)
	defer cancelFunc()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		err = errors.New("redis connection failed: " + err.Error())
		zap.L().Error("redis_connect", zap.String("addr", rc.Options().Addr), zap.Error(err))
		return nil, err
	}
	return rc, nil
}
