package migration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

const (
	// TypeMigrationTrigger is the task type for async manual triggers
	TypeMigrationTrigger = "migration:trigger"
	// QueueName is the asynq queue for migration tasks
	QueueName = "migration"
)

// TriggerRequest describes a manual migration task. Explicit keys bypass
// candidate selection; a business tag selects tagged candidates; with neither,
// the regular sweep selection runs.
type TriggerRequest struct {
	Type        featurestore.MigrationType `json:"task_type"`
	Keys        []string                   `json:"keys,omitempty"`
	BusinessTag string                     `json:"business_tag,omitempty"`
}

// queueManager enqueues async triggers onto the migration queue
type queueManager struct {
	client *asynq.Client
}

func newQueueManager(redisOpt *asynq.RedisClientOpt) *queueManager {
	return &queueManager{client: asynq.NewClient(*redisOpt)}
}

// EnqueueTrigger schedules a trigger for background execution and returns the task ID
func (q *queueManager) EnqueueTrigger(req TriggerRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trigger: %w", err)
	}

	task := asynq.NewTask(TypeMigrationTrigger, payload)

	info, err := q.client.Enqueue(task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue trigger: %w", err)
	}

	return info.ID, nil
}

func (q *queueManager) Close() error {
	return q.client.Close()
}
