package kv

import (
	"errors"

	"github.com/lunamage/featurehub/pkg/featurestore"
)

var (
	// ErrNoClientForTier is returned when a tier has no configured store
	ErrNoClientForTier = errors.New("no kv client for tier")
)

// Tiered pairs the HOT and COLD stores and selects one by tier tag
type Tiered struct {
	hot  Client
	cold Client
}

// NewTiered builds a tiered selector from the two stores
func NewTiered(hot, cold Client) *Tiered {
	return &Tiered{hot: hot, cold: cold}
}

// ForTier returns the store holding the given tier
func (t *Tiered) ForTier(tier featurestore.StorageTier) Client {
	if tier == featurestore.TierCold {
		return t.cold
	}

	return t.hot
}

// Hot returns the in-memory store
func (t *Tiered) Hot() Client { return t.hot }

// Cold returns the disk-backed store
func (t *Tiered) Cold() Client { return t.cold }

// Close closes both stores, returning the first error
func (t *Tiered) Close() error {
	errHot := t.hot.Close()
	errCold := t.cold.Close()

	if errHot != nil {
		return errHot
	}

	return errCold
}
