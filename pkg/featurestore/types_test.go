package featurestore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    StorageTier
		wantErr bool
	}{
		{name: "hot", input: "HOT", want: TierHot},
		{name: "cold", input: "COLD", want: TierCold},
		{name: "lowercase rejected", input: "hot", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "garbage rejected", input: "WARM", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownTier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStorageTier_Other(t *testing.T) {
	assert.Equal(t, TierCold, TierHot.Other())
	assert.Equal(t, TierHot, TierCold.Other())
}

func TestMigrationType_SourceTarget(t *testing.T) {
	assert.Equal(t, TierHot, MigrationHotToCold.Source())
	assert.Equal(t, TierCold, MigrationHotToCold.Target())
	assert.Equal(t, TierCold, MigrationColdToHot.Source())
	assert.Equal(t, TierHot, MigrationColdToHot.Target())
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("user:1:age"))
	assert.ErrorIs(t, ValidateKey(""), ErrEmptyKey)
	assert.NoError(t, ValidateKey(strings.Repeat("k", MaxKeyLength)))
	assert.ErrorIs(t, ValidateKey(strings.Repeat("k", MaxKeyLength+1)), ErrKeyTooLong)
}

func TestFeatureMetadata_IsExpired(t *testing.T) {
	now := time.Now().UnixMilli()

	m := NewFeatureMetadata("k")
	assert.False(t, m.IsExpired(now), "no expiry means never expired")

	past := now - 1
	m.ExpireTime = &past
	assert.True(t, m.IsExpired(now))

	future := now + time.Hour.Milliseconds()
	m.ExpireTime = &future
	assert.False(t, m.IsExpired(now))
}

func TestFeatureMetadata_Touch(t *testing.T) {
	m := NewFeatureMetadata("k")
	m.AccessCount = 4

	m.Touch(12345)

	assert.Equal(t, int64(12345), m.LastAccessTime)
	assert.Equal(t, int64(5), m.AccessCount)
}

func TestFeatureMetadata_Clone(t *testing.T) {
	expire := int64(99)
	tag := "ranking"
	m := NewFeatureMetadata("k")
	m.ExpireTime = &expire
	m.BusinessTag = &tag

	c := m.Clone()
	require.Equal(t, m, c)

	// Mutating the clone must not touch the original.
	*c.ExpireTime = 100
	*c.BusinessTag = "ads"
	assert.Equal(t, int64(99), *m.ExpireTime)
	assert.Equal(t, "ranking", *m.BusinessTag)
}

func TestNewFeatureMetadata_Defaults(t *testing.T) {
	m := NewFeatureMetadata("user:1:age")

	assert.Equal(t, TierHot, m.StorageTier)
	assert.Equal(t, StatusStable, m.MigrationStatus)
	assert.Equal(t, int64(0), m.AccessCount)
	assert.Equal(t, m.CreateTime, m.UpdateTime)
	assert.Nil(t, m.ExpireTime)
}
