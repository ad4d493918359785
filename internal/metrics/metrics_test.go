package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGathersAllDeclaredMetrics(t *testing.T) {
	families, err := Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"peerchat_elections_started_total",
		"peerchat_elections_won_total",
		"peerchat_coordinator_changes_total",
		"peerchat_heartbeats_sent_total",
		"peerchat_heartbeats_received_total",
		"peerchat_coordinator_suspected_total",
		"peerchat_membership_size",
	} {
		assert.True(t, names[want], "expected %s to be registered", want)
	}
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ElectionsStarted)
	ElectionsStarted.Inc()
	after := testutil.ToFloat64(ElectionsStarted)
	assert.Equal(t, before+1, after)
}
