package services

import (
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryCutoff_MatchesStoredDatetimeOrdering(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	cutoff := expiryCutoff(now)

	assert.Equal(t, "2026-08-29 10:00:00.000Z", cutoff)

	// Records are compared as strings in the filter, so the cutoff must use
	// the same layout PocketBase stores.
	stored, err := types.ParseDateTime(time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, stored.String()[:10], cutoff[:10])

	notYetExpired := stored.String()
	assert.False(t, notYetExpired < cutoff, "a later expiry must not compare as already past")

	expired, err := types.ParseDateTime(time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, expired.String() < cutoff)
}

func TestExpiryCutoff_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2026, 8, 29, 17, 0, 0, 0, loc)

	assert.Equal(t, "2026-08-29 10:00:00.000Z", expiryCutoff(local))
}
