package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		scheme  string
		host    string
		wantErr bool
	}{
		{name: "bare host port", addr: "10.0.0.1:2379", scheme: "http", host: "10.0.0.1:2379"},
		{name: "explicit http", addr: "http://etcd-gw:2379", scheme: "http", host: "etcd-gw:2379"},
		{name: "explicit https", addr: "https://etcd-gw:2379", scheme: "https", host: "etcd-gw:2379"},
		{name: "ipv6 literal", addr: "[::1]:2379", scheme: "http", host: "[::1]:2379"},
		{name: "uppercase scheme", addr: "HTTP://gw:2379", scheme: "http", host: "gw:2379"},
		{name: "surrounding whitespace", addr: "  gw:2379  ", scheme: "http", host: "gw:2379"},
		{name: "empty", addr: "", wantErr: true},
		{name: "missing port", addr: "gw", wantErr: true},
		{name: "unsupported scheme", addr: "grpc://gw:2379", wantErr: true},
		{name: "trailing path", addr: "gw:2379/v3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := parseEndpoint(tt.addr, "/v3")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, ep.Scheme)
			assert.Equal(t, tt.host, ep.Host)
		})
	}
}

func TestEndpointURL(t *testing.T) {
	ep, err := parseEndpoint("https://gw:2379", "/v3")
	require.NoError(t, err)

	assert.Equal(t, "https://gw:2379/v3/kv/range", ep.URL("/kv/range"))
	// /version mounts at the gateway root, outside the API prefix
	assert.Equal(t, "https://gw:2379/version", ep.BareURL("/version"))
}

func TestParseEndpoints(t *testing.T) {
	t.Run("preserves order", func(t *testing.T) {
		eps, err := parseEndpoints([]string{"a:1", "b:2", "c:3"}, "/v3")
		require.NoError(t, err)
		require.Len(t, eps, 3)
		assert.Equal(t, "a:1", eps[0].Host)
		assert.Equal(t, "b:2", eps[1].Host)
		assert.Equal(t, "c:3", eps[2].Host)
	})

	t.Run("single bad endpoint fails the batch", func(t *testing.T) {
		_, err := parseEndpoints([]string{"a:1", "nope"}, "/v3")
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("empty list", func(t *testing.T) {
		_, err := parseEndpoints(nil, "/v3")
		assert.ErrorIs(t, err, ErrNoEndpoints)
	})
}
