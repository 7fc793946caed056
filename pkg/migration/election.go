package migration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	leaderKey     = "featurehub:migration:leader"
	leaseTTL      = 10 * time.Second
	renewInterval = 3 * time.Second
)

// LeaderElector keeps multi-replica deployments down to one sweeper using a
// Redis lease. The per-key claims still make overlapping sweeps safe; election
// just avoids redundant candidate selection.
type LeaderElector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
}

type elector struct {
	log        logrus.FieldLogger
	redis      *redis.Client
	instanceID string

	isLeader bool
	mu       sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLeaderElector creates an elector over an existing Redis client
func NewLeaderElector(log logrus.FieldLogger, client *redis.Client) LeaderElector {
	return &elector{
		log:        log.WithField("component", "election"),
		redis:      client,
		instanceID: uuid.New().String(),
		done:       make(chan struct{}),
	}
}

func (e *elector) Start(ctx context.Context) error {
	e.log.WithField("instance_id", e.instanceID).Info("Starting leader election")

	// Contest immediately so a single instance leads from the first sweep
	e.setLeader(e.tryAcquire(ctx))

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

func (e *elector) Stop() error {
	close(e.done)
	e.wg.Wait()
	e.relinquish(context.Background())
	e.log.Info("Leader election stopped")

	return nil
}

func (e *elector) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			wasLeader := e.IsLeader()
			acquired := e.tryAcquire(ctx)
			e.setLeader(acquired)

			if acquired && !wasLeader {
				e.log.WithField("instance_id", e.instanceID).Info("Promoted to leader")
			} else if !acquired && wasLeader {
				e.log.WithField("instance_id", e.instanceID).Info("Demoted from leader")
			}
		}
	}
}

func (e *elector) tryAcquire(ctx context.Context) bool {
	acquired, err := e.redis.SetNX(ctx, leaderKey, e.instanceID, leaseTTL).Result()
	if err != nil {
		e.log.WithError(err).Debug("Failed to acquire leader lock")
		return false
	}

	if acquired {
		return true
	}

	owner, err := e.redis.Get(ctx, leaderKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.log.WithError(err).Debug("Failed to check lock owner")
		}

		return false
	}

	if owner == e.instanceID {
		if err := e.redis.Expire(ctx, leaderKey, leaseTTL).Err(); err != nil {
			e.log.WithError(err).Warn("Failed to renew leader lease")
			return false
		}

		return true
	}

	return false
}

func (e *elector) relinquish(ctx context.Context) {
	if !e.IsLeader() {
		return
	}

	owner, err := e.redis.Get(ctx, leaderKey).Result()
	if err == nil && owner == e.instanceID {
		if err := e.redis.Del(ctx, leaderKey).Err(); err != nil {
			e.log.WithError(err).Warn("Failed to delete leader lock")
		}
	}

	e.setLeader(false)
}

func (e *elector) setLeader(isLeader bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isLeader = isLeader
}

func (e *elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader
}
