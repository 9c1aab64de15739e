package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("RENDER_TIMEOUT", "")
	t.Setenv("SIMP_LIMIT", "")
	t.Setenv("OWNER_IDS", "")
	t.Setenv("SIMP_LIMIT_OVERRIDES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "neato", cfg.RenderBinary)
	assert.Equal(t, 10*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 5, cfg.SimpLimit)
	assert.Empty(t, cfg.OwnerIDs)
	assert.Empty(t, cfg.SimpLimitOverrides)
}

func TestLoad_ParsesListsAndDurations(t *testing.T) {
	t.Setenv("STORE_BACKEND", "NEO4J")
	t.Setenv("RENDER_TIMEOUT", "2500ms")
	t.Setenv("OWNER_IDS", "141231597155385344, 553058885418876928")
	t.Setenv("SIMP_LIMIT_OVERRIDES", "704708159901663302:69,958819217984077935:6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendNeo4j, cfg.StoreBackend)
	assert.Equal(t, 2500*time.Millisecond, cfg.RenderTimeout)
	assert.Equal(t, []int64{141231597155385344, 553058885418876928}, cfg.OwnerIDs)
	assert.True(t, cfg.IsOwner(553058885418876928))
	assert.False(t, cfg.IsOwner(1))
	assert.Equal(t, map[int64]int{704708159901663302: 69, 958819217984077935: 6}, cfg.SimpLimitOverrides)
}

func TestLoad_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown backend", "STORE_BACKEND", "mongodb"},
		{"bad owner id", "OWNER_IDS", "abc"},
		{"bad override", "SIMP_LIMIT_OVERRIDES", "123"},
		{"zero limit", "SIMP_LIMIT", "0"},
		{"non-image format", "RENDER_FORMAT", "dot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
