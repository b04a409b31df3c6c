package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REALTIME_SESSION_POLICY", "")
	t.Setenv("REALTIME_STAFF_ROLES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SessionPolicySingle, cfg.Realtime.SessionPolicy)
	assert.Equal(t, []string{"AGENT", "TEAM_LEAD", "ADMIN"}, cfg.Realtime.StaffRoles)
	assert.Equal(t, "@every 1m", cfg.SLA.SweepSchedule)
	assert.Equal(t, 5*time.Minute, cfg.SLA.PolicyCacheTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REALTIME_SESSION_POLICY", "MULTI")
	t.Setenv("REALTIME_STAFF_ROLES", "agent, admin ,")
	t.Setenv("REALTIME_WRITE_TIMEOUT_SECONDS", "3")
	t.Setenv("SLA_SWEEP_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SessionPolicyMulti, cfg.Realtime.SessionPolicy)
	assert.Equal(t, []string{"agent", "admin"}, cfg.Realtime.StaffRoles)
	assert.Equal(t, 3*time.Second, cfg.Realtime.WriteTimeout())
	assert.False(t, cfg.SLA.SweepEnabled)
}

func TestLoadRejectsUnknownSessionPolicy(t *testing.T) {
	t.Setenv("REALTIME_SESSION_POLICY", "round-robin")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REALTIME_SESSION_POLICY")
}
