package featurestore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMigrationType is returned when a migration task type is not recognized
	ErrUnknownMigrationType = errors.New("unknown migration type")
	// ErrUnknownCleanupType is returned when a cleanup task type is not recognized
	ErrUnknownCleanupType = errors.New("unknown cleanup type")
)

// MigrationType identifies the direction of a migration task
type MigrationType string

const (
	// MigrationHotToCold demotes idle keys to the disk-backed store
	MigrationHotToCold MigrationType = "HOT_TO_COLD"
	// MigrationColdToHot recalls frequently accessed keys to the in-memory store
	MigrationColdToHot MigrationType = "COLD_TO_HOT"
)

// ParseMigrationType converts a string into a MigrationType
func ParseMigrationType(s string) (MigrationType, error) {
	switch MigrationType(s) {
	case MigrationHotToCold, MigrationColdToHot:
		return MigrationType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMigrationType, s)
	}
}

// Source returns the tier keys are read from
func (t MigrationType) Source() StorageTier {
	if t == MigrationHotToCold {
		return TierHot
	}

	return TierCold
}

// Target returns the tier keys are written to
func (t MigrationType) Target() StorageTier {
	return t.Source().Other()
}

// TaskStatus is the lifecycle state of a migration or cleanup task
type TaskStatus string

const (
	// TaskRunning means the task is in flight
	TaskRunning TaskStatus = "RUNNING"
	// TaskCompleted means the task finished, possibly with per-key failures
	TaskCompleted TaskStatus = "COMPLETED"
	// TaskFailed means the task aborted before processing all keys
	TaskFailed TaskStatus = "FAILED"
)

// MigrationRecord is the audit entry for one migration task
type MigrationRecord struct {
	TaskID       string        `json:"task_id"`
	Type         MigrationType `json:"type"`
	Status       TaskStatus    `json:"status"`
	SourceTier   StorageTier   `json:"source_tier"`
	TargetTier   StorageTier   `json:"target_tier"`
	StartTime    int64         `json:"start_time"`
	EndTime      int64         `json:"end_time,omitempty"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	FailCount    int           `json:"fail_count"`
	FailedKeys   []string      `json:"failed_keys,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// CleanupType identifies what a cleanup task reclaims
type CleanupType string

const (
	// CleanupExpired removes keys whose expire_time has passed
	CleanupExpired CleanupType = "EXPIRED_DATA"
	// CleanupOrphan removes store keys that have no metadata row
	CleanupOrphan CleanupType = "ORPHAN_DATA"
)

// ParseCleanupType converts a string into a CleanupType
func ParseCleanupType(s string) (CleanupType, error) {
	switch CleanupType(s) {
	case CleanupExpired, CleanupOrphan:
		return CleanupType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCleanupType, s)
	}
}

// CleanupRecord is the audit entry for one cleanup sweep
type CleanupRecord struct {
	TaskID       string      `json:"task_id"`
	Type         CleanupType `json:"type"`
	Status       TaskStatus  `json:"status"`
	StartTime    int64       `json:"start_time"`
	EndTime      int64       `json:"end_time,omitempty"`
	CleanedCount int         `json:"cleaned_count"`
	FailedCount  int         `json:"failed_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
}
