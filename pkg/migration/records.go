package migration

import (
	"sync"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

const maxRetainedRecords = 100

// recordBook retains the most recent migration records in memory. Durable
// history lives on the event bus; this ring serves the records and statistics
// endpoints.
type recordBook struct {
	mu      sync.RWMutex
	records []*featurestore.MigrationRecord
}

func newRecordBook() *recordBook {
	return &recordBook{}
}

func (b *recordBook) Add(record *featurestore.MigrationRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, record)
	if len(b.records) > maxRetainedRecords {
		b.records = b.records[len(b.records)-maxRetainedRecords:]
	}
}

// Recent returns up to limit records, newest first, optionally filtered by status
func (b *recordBook) Recent(limit int, status featurestore.TaskStatus) []*featurestore.MigrationRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*featurestore.MigrationRecord, 0, limit)

	for i := len(b.records) - 1; i >= 0 && len(out) < limit; i-- {
		if status != "" && b.records[i].Status != status {
			continue
		}

		out = append(out, b.records[i])
	}

	return out
}

// Statistics aggregates the retained records
func (b *recordBook) Statistics() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		totalKeys, successKeys, failKeys int
		totalDurationMs                  int64
		completed                        int
	)

	for _, r := range b.records {
		totalKeys += r.Total
		successKeys += r.SuccessCount
		failKeys += r.FailCount

		if r.EndTime > 0 {
			totalDurationMs += r.EndTime - r.StartTime
			completed++
		}
	}

	successRate := 0.0
	if successKeys+failKeys > 0 {
		successRate = float64(successKeys) / float64(successKeys+failKeys) * 100
	}

	avgDurationMs := int64(0)
	if completed > 0 {
		avgDurationMs = totalDurationMs / int64(completed)
	}

	return map[string]any{
		"total_migrations": len(b.records),
		"total_keys":       totalKeys,
		"success_count":    successKeys,
		"fail_count":       failKeys,
		"success_rate":     successRate,
		"avg_duration_ms":  avgDurationMs,
	}
}
