package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAGEDRAFT_AUTOSAVE_DELAY_MS", "")
	t.Setenv("PAGEDRAFT_AUTOSAVE_MAX_FAILURES", "")

	cfg := Load()
	assert.Equal(t, 3*time.Second, cfg.AutosaveDelay)
	assert.Equal(t, 3, cfg.AutosaveMaxFailures)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAGEDRAFT_AUTOSAVE_DELAY_MS", "750")
	t.Setenv("PAGEDRAFT_AUTOSAVE_MAX_FAILURES", "5")
	t.Setenv("PAGEDRAFT_STASH_TTL_SECONDS", "not-a-number")
	t.Setenv("API_ADDR", ":9999")

	cfg := Load()
	assert.Equal(t, 750*time.Millisecond, cfg.AutosaveDelay)
	assert.Equal(t, 5, cfg.AutosaveMaxFailures)
	assert.Equal(t, 7*24*time.Hour, cfg.StashTTL, "invalid ttl should fall back")
	assert.Equal(t, ":9999", cfg.Addr)
}
