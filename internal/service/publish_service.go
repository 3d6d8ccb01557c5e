// Package service contains the service layer for the Comdex API
package service

import (
	"context"
	"time"

	"github.com/comdex/comdexapi/internal/repository"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// RedisStatusChannel carries index status events to every API instance
var RedisStatusChannel = "CH:COMDEX:INDEX:STATUS"

// PublishService relays Postgres status notifications to Redis
type PublishService struct {
	redisClient *redis.Client
	pgConnStr   string
}

func NewPublishService(redisClient *redis.Client, pgConnStr string) *PublishService {
	return &PublishService{
		redisClient: redisClient,
		pgConnStr:   pgConnStr,
	}
}

// PublishStatusEvents listens on the status channel until ctx is done
func (s *PublishService) PublishStatusEvents(ctx context.Context) {
	listener := pq.NewListener(s.pgConnStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			zaplogger.Error("PostgreSQL listener event", zaplogger.Fields{"event": int(ev), "error": err.Error()})
		}
	})
	defer listener.Close()

	if err := listener.Listen(repository.IndexStatusChannel); err != nil {
		zaplogger.Error("Failed to listen on PostgreSQL channel", zaplogger.Fields{
			"channel": repository.IndexStatusChannel,
			"error":   err.Error(),
		})
		return
	}
	zaplogger.Info("Relaying index status events", zaplogger.Fields{
		"from": repository.IndexStatusChannel,
		"to":   RedisStatusChannel,
	})

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			if err := s.redisClient.Publish(ctx, RedisStatusChannel, n.Extra).Err(); err != nil {
				zaplogger.Error("Failed to publish to Redis", zaplogger.Fields{"error": err.Error()})
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					zaplogger.Error("Error pinging PostgreSQL", zaplogger.Fields{"error": err.Error()})
				}
			}()
		}
	}
}
