package router

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/observability"
)

const statUpdateTimeout = 2 * time.Second

// statUpdate is one pending access-stat bump
type statUpdate struct {
	key string
	now int64
}

// MetadataToucher is the minimal metadata capability the updater needs
type MetadataToucher interface {
	Touch(ctx context.Context, key string, now int64) (bool, error)
}

// statUpdater applies access-stat updates off the request path through a
// bounded queue. Stats are advisory: when the queue is full the oldest update
// is dropped rather than blocking a read.
type statUpdater struct {
	log  logrus.FieldLogger
	meta MetadataToucher

	queue chan statUpdate
	done  chan struct{}
	wg    sync.WaitGroup
}

func newStatUpdater(log logrus.FieldLogger, meta MetadataToucher, queueSize int) *statUpdater {
	return &statUpdater{
		log:   log.WithField("component", "stat-updater"),
		meta:  meta,
		queue: make(chan statUpdate, queueSize),
		done:  make(chan struct{}),
	}
}

func (u *statUpdater) Start(workers int) {
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
}

func (u *statUpdater) Stop() {
	close(u.done)
	u.wg.Wait()
}

// Enqueue records one access without blocking; drop-oldest when full
func (u *statUpdater) Enqueue(key string, now int64) {
	update := statUpdate{key: key, now: now}

	select {
	case u.queue <- update:
	default:
		select {
		case <-u.queue:
			observability.StatUpdatesDropped.Inc()
		default:
		}

		select {
		case u.queue <- update:
		default:
			observability.StatUpdatesDropped.Inc()
		}
	}

	observability.StatQueueDepth.Set(float64(len(u.queue)))
}

func (u *statUpdater) worker() {
	defer u.wg.Done()

	for {
		select {
		case <-u.done:
			return
		case update := <-u.queue:
			u.apply(update)
			observability.StatQueueDepth.Set(float64(len(u.queue)))
		}
	}
}

func (u *statUpdater) apply(update statUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), statUpdateTimeout)
	defer cancel()

	if _, err := u.meta.Touch(ctx, update.key, update.now); err != nil {
		u.log.WithError(err).WithField("key", update.key).Debug("Access-stat update failed")
	}
}
