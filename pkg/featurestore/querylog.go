package featurestore

import "time"

// QueryLog is the telemetry record emitted for every read.
// Events for the same key are delivered in the order the router processed them.
type QueryLog struct {
	Key         string      `json:"key"`
	Timestamp   int64       `json:"timestamp_ms"`
	SourceTier  StorageTier `json:"source_tier"`
	ClientIP    string      `json:"client_ip,omitempty"`
	UserID      string      `json:"user_id,omitempty"`
	Success     bool        `json:"success"`
	QueryTimeMs int64       `json:"query_time_ms"`
	Error       string      `json:"error,omitempty"`
	BusinessTag string      `json:"business_tag,omitempty"`
}

// NewQueryLog returns a log stamped with the current time
func NewQueryLog(key string, tier StorageTier) *QueryLog {
	return &QueryLog{
		Key:        key,
		Timestamp:  time.Now().UnixMilli(),
		SourceTier: tier,
	}
}
