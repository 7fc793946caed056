package migration

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunamage/featurehub/internal/testutil"
)

func newTestElector(t *testing.T, client *redis.Client) *elector {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewLeaderElector(log, client).(*elector)
}

func TestElector_SingleInstanceBecomesLeader(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	e := newTestElector(t, client)

	assert.True(t, e.tryAcquire(context.Background()))

	owner, err := client.Get(context.Background(), leaderKey).Result()
	require.NoError(t, err)
	assert.Equal(t, e.instanceID, owner)
}

func TestElector_SecondInstanceLosesContest(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	ctx := context.Background()

	first := newTestElector(t, client)
	second := newTestElector(t, client)

	assert.True(t, first.tryAcquire(ctx))
	assert.False(t, second.tryAcquire(ctx))

	// The holder renews its own lease
	assert.True(t, first.tryAcquire(ctx))
}

func TestElector_RelinquishFreesTheLease(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	ctx := context.Background()

	first := newTestElector(t, client)
	second := newTestElector(t, client)

	require.True(t, first.tryAcquire(ctx))
	first.setLeader(true)

	first.relinquish(ctx)
	assert.False(t, first.IsLeader())

	assert.True(t, second.tryAcquire(ctx))
}

func TestElector_LeaseExpiryHandsOver(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	ctx := context.Background()

	first := newTestElector(t, client)
	second := newTestElector(t, client)

	require.True(t, first.tryAcquire(ctx))

	mr.FastForward(leaseTTL * 2)

	assert.True(t, second.tryAcquire(ctx))
}
