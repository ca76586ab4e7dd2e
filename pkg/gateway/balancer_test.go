package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBalancer 构造带独立健康状态的均衡器。
func newTestBalancer(t *testing.T, hosts []string, seed uint64) (*balancer, *healthTracker) {
	t.Helper()
	endpoints := make([]Endpoint, 0, len(hosts))
	for _, host := range hosts {
		ep, err := parseEndpoint(host, "/v3")
		require.NoError(t, err)
		endpoints = append(endpoints, ep)
	}
	t.Cleanup(func() { resetHealth(hosts...) })
	health := newHealthTracker(HealthConfig{Enabled: true, MaxFails: 1, FailTimeout: defaultFailTimeout})
	return newBalancer(endpoints, health, &seed), health
}

func TestBalancerRoundRobin(t *testing.T) {
	hosts := uniqueEndpoints(t, 3)
	b, _ := newTestBalancer(t, hosts, 0)

	// all healthy: strict rotation from the seeded cursor
	var got []string
	for i := 0; i < 6; i++ {
		ep, err := b.Choose()
		require.NoError(t, err)
		got = append(got, ep.Host)
	}
	want := []string{hosts[0], hosts[1], hosts[2], hosts[0], hosts[1], hosts[2]}
	assert.Equal(t, want, got)
}

func TestBalancerSkipsUnhealthy(t *testing.T) {
	hosts := uniqueEndpoints(t, 3)
	b, health := newTestBalancer(t, hosts, 0)

	// endpoint 1 trips after a single failure (MaxFails=1)
	health.ReportFailure(hosts[1])

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		ep, err := b.Choose()
		require.NoError(t, err)
		seen[ep.Host]++
	}
	assert.Zero(t, seen[hosts[1]], "unhealthy endpoint must be skipped")
	assert.Equal(t, 3, seen[hosts[0]])
	assert.Equal(t, 3, seen[hosts[2]])
}

func TestBalancerAllUnhealthy(t *testing.T) {
	hosts := uniqueEndpoints(t, 2)
	b, health := newTestBalancer(t, hosts, 0)

	for _, host := range hosts {
		health.ReportFailure(host)
	}

	ep, err := b.Choose()
	assert.Nil(t, ep)
	assert.ErrorIs(t, err, ErrNoHealthyEndpoint)
	assert.True(t, IsNoHealthyEndpoint(err))
}

func TestBalancerFairnessUnderLoad(t *testing.T) {
	hosts := uniqueEndpoints(t, 4)
	b, _ := newTestBalancer(t, hosts, 7)

	const rounds = 400
	seen := map[string]int{}
	for i := 0; i < rounds; i++ {
		ep, err := b.Choose()
		require.NoError(t, err)
		seen[ep.Host]++
	}
	for _, host := range hosts {
		assert.Equal(t, rounds/len(hosts), seen[host], "host %s", host)
	}
}

func TestBalancerCursorWrap(t *testing.T) {
	hosts := uniqueEndpoints(t, 3)
	seed := uint64(cursorBound - 2)
	b, _ := newTestBalancer(t, hosts, seed)

	// crossing the wrap bound must not panic or break rotation
	for i := 0; i < 10; i++ {
		_, err := b.Choose()
		require.NoError(t, err)
	}
	assert.Less(t, b.cursor.Load(), uint64(cursorBound)+1)
}

func TestBalancerSeedModulo(t *testing.T) {
	hosts := uniqueEndpoints(t, 3)
	// seeds beyond the bound are reduced, not rejected
	b, _ := newTestBalancer(t, hosts, uint64(cursorBound)+5)
	ep, err := b.Choose()
	require.NoError(t, err)
	assert.Equal(t, hosts[5%3], ep.Host)
}
