// Package inflight holds per-action in-flight flags so that a user cannot submit the same
// action twice while the first submission is still running.
package inflight

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInFlight is returned when the same action is already running
var ErrInFlight = errors.New("action already in progress")

const DefaultTTL = 30 * time.Second

// Guard grants exclusive ownership of a key until the returned release func is called.
// The TTL bounds how long a crashed holder can block the key.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key builds the flag name of one action on one entity of one user
func Key(userID int64, action string, entityID int64) string {
	return fmt.Sprintf("inflight:%d:%s:%d", userID, action, entityID)
}
