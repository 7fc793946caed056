package testutil

import (
	"time"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

// Metadata builds a stable record in the given tier, last accessed now
func Metadata(key string, tier featurestore.StorageTier) *featurestore.FeatureMetadata {
	now := time.Now().UnixMilli()

	return &featurestore.FeatureMetadata{
		KeyName:         key,
		StorageTier:     tier,
		LastAccessTime:  now,
		CreateTime:      now,
		UpdateTime:      now,
		MigrationStatus: featurestore.StatusStable,
	}
}

// IdleMetadata builds a stable HOT record last accessed the given duration ago
func IdleMetadata(key string, idle time.Duration) *featurestore.FeatureMetadata {
	m := Metadata(key, featurestore.TierHot)
	m.LastAccessTime = time.Now().Add(-idle).UnixMilli()

	return m
}

// ExpiredMetadata builds a record whose expiry passed the given duration ago
func ExpiredMetadata(key string, tier featurestore.StorageTier, ago time.Duration) *featurestore.FeatureMetadata {
	m := Metadata(key, tier)
	expire := time.Now().Add(-ago).UnixMilli()
	m.ExpireTime = &expire

	return m
}

// HotColdCandidate builds a stable COLD record hot enough to be recalled
func HotColdCandidate(key string, accessCount int64) *featurestore.FeatureMetadata {
	m := Metadata(key, featurestore.TierCold)
	m.AccessCount = accessCount

	return m
}
