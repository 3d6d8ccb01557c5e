// Package service contains the service layer for the Comdex API
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// StatusEventReader returns stored status events, newest first
type StatusEventReader interface {
	RecentStatusEvents(ctx context.Context, indexID int64, limit int) ([]models.IndexStatusEventModel, error)
}

// StreamClient is a client that is subscribed to the status stream
type StreamClient struct {
	ID      string
	IndexID int64 // 0 for every index
	Channel chan []byte
}

// StreamService fans index status events out to SSE clients.
// One Redis subscription serves every client of the process.
type StreamService struct {
	redisClient *redis.Client
	events      StatusEventReader

	mu      sync.RWMutex
	clients map[string]*StreamClient
	started bool
}

// NewStreamService creates a new service for the stream API
func NewStreamService(redisClient *redis.Client, events StatusEventReader) *StreamService {
	return &StreamService{
		redisClient: redisClient,
		events:      events,
		clients:     make(map[string]*StreamClient),
	}
}

// Recent returns the stored status history of an index, or of every index for 0
func (s *StreamService) Recent(ctx context.Context, indexID int64, limit int) ([]models.IndexStatusEventModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.events.RecentStatusEvents(ctx, indexID, limit)
}

// Subscribe starts the Redis subscription; later calls are no-ops
func (s *StreamService) Subscribe(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	pubsub := s.redisClient.Subscribe(ctx, RedisStatusChannel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.broadcast([]byte(msg.Payload))
			}
		}
	}()
}

// RunStatusStream writes status events to the client until it disconnects
func (s *StreamService) RunStatusStream(ctx context.Context, c echo.Context, indexID int64) error {
	clientID := c.Response().Header().Get(echo.HeaderXRequestID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := &StreamClient{ID: clientID, IndexID: indexID, Channel: make(chan []byte, 100)}
	s.addClient(client)
	defer s.removeClient(clientID)

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	if _, err := c.Response().Write([]byte("data: connected\n\n")); err != nil {
		return err
	}
	c.Response().Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-client.Channel:
			if _, err := c.Response().Write(data); err != nil {
				return fmt.Errorf("write to client %s: %w", clientID, err)
			}
			c.Response().Flush()
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
				return fmt.Errorf("keep-alive to client %s: %w", clientID, err)
			}
			c.Response().Flush()
		}
	}
}

func (s *StreamService) addClient(client *StreamClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
}

func (s *StreamService) removeClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
}

// broadcast sends one status event to every client watching its index
func (s *StreamService) broadcast(payload []byte) {
	var ev models.IndexStatusEventModel
	if err := json.Unmarshal(payload, &ev); err != nil {
		zaplogger.Warn("dropping malformed status event", zaplogger.Fields{"error": err.Error()})
		return
	}
	data := []byte(fmt.Sprintf("event: index_status\ndata: %s\n\n", payload))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		if client.IndexID != 0 && client.IndexID != ev.IndexID {
			continue
		}
		select {
		case client.Channel <- data:
		default:
			zaplogger.Warn("Skipping slow client", zaplogger.Fields{"client": client.ID})
		}
	}
}
