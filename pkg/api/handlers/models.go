package handlers

import (
	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/router"
)

// QueryOptionsPayload is the options block accepted by read requests
type QueryOptionsPayload struct {
	IncludeMetadata bool   `json:"include_metadata"`
	TimeoutMs       int64  `json:"timeout_ms"`
	UserID          string `json:"user_id"`
}

// BatchQueryRequest is the body of POST /features/batch
type BatchQueryRequest struct {
	Keys    []string            `json:"keys"`
	Options QueryOptionsPayload `json:"options"`
}

// BatchQueryResponse pairs the per-key results with their summary
type BatchQueryResponse struct {
	Results []*router.FeatureResult `json:"results"`
	Summary *router.BatchSummary    `json:"summary"`
}

// PutFeatureRequest is the body of PUT /feature/{key}
type PutFeatureRequest struct {
	Value       string `json:"value"`
	TTL         *int64 `json:"ttl,omitempty"`
	StorageHint string `json:"storage_hint,omitempty"`
}

// BatchMetadataRequest is the body of POST /metadata/batch
type BatchMetadataRequest struct {
	Keys []string `json:"keys"`
}

// BatchMetadataUpdateRequest is the body of PUT /metadata/batch
type BatchMetadataUpdateRequest struct {
	Updates []*featurestore.FeatureMetadata `json:"updates"`
}

// MigrationTriggerRequest is the body of POST /migration/trigger
type MigrationTriggerRequest struct {
	TaskType    string   `json:"task_type"`
	Keys        []string `json:"keys,omitempty"`
	BusinessTag string   `json:"business_tag,omitempty"`
	Async       bool     `json:"async,omitempty"`
}

// CleanupTriggerRequest is the body of POST /data-cleaner/trigger
type CleanupTriggerRequest struct {
	CleanupType string   `json:"cleanup_type"`
	Keys        []string `json:"keys,omitempty"`
}
