package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingToucher captures Touch calls without a real metadata backend
type recordingToucher struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingToucher) Touch(_ context.Context, key string, _ int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, key)

	return true, nil
}

func (r *recordingToucher) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func TestStatUpdater_AppliesUpdates(t *testing.T) {
	toucher := &recordingToucher{}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	u := newStatUpdater(log, toucher, 16)
	u.Start(1)
	defer u.Stop()

	u.Enqueue("a", 1)
	u.Enqueue("b", 2)

	require.Eventually(t, func() bool {
		return len(toucher.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, toucher.snapshot())
}

func TestStatUpdater_DropOldestWhenFull(t *testing.T) {
	toucher := &recordingToucher{}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	// No workers draining: the queue of two fills up and the oldest entries
	// give way to the newest.
	u := newStatUpdater(log, toucher, 2)

	u.Enqueue("a", 1)
	u.Enqueue("b", 2)
	u.Enqueue("c", 3)

	u.Start(1)
	defer u.Stop()

	require.Eventually(t, func() bool {
		return len(toucher.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// "a" was dropped to admit "c"
	assert.Equal(t, []string{"b", "c"}, toucher.snapshot())
}
