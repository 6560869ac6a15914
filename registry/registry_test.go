package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	calls     atomic.Int32
	readyAt   int32
	instances []ServiceInfo
	err       error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, kind, name string) ([]ServiceInfo, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if n < f.readyAt {
		return nil, nil
	}
	return f.instances, nil
}

func TestSelect(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		instances []ServiceInfo
		want      string
		ok        bool
	}{
		{"empty", nil, "", false},
		{"no endpoints", []ServiceInfo{{InstanceID: "a"}}, "", false},
		{"newest wins", []ServiceInfo{
			{InstanceID: "a", Endpoint: "old:1", StartedAt: now.Add(-time.Hour)},
			{InstanceID: "b", Endpoint: "new:1", StartedAt: now},
		}, "new:1", true},
		{"tie by instance id", []ServiceInfo{
			{InstanceID: "b", Endpoint: "b:1", StartedAt: now},
			{InstanceID: "a", Endpoint: "a:1", StartedAt: now},
		}, "a:1", true},
		{"skips missing endpoint", []ServiceInfo{
			{InstanceID: "a", StartedAt: now},
			{InstanceID: "b", Endpoint: "b:1", StartedAt: now.Add(-time.Minute)},
		}, "b:1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Select(tt.instances)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Endpoint)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Run("appears after retries", func(t *testing.T) {
		d := &fakeDiscoverer{readyAt: 3, instances: []ServiceInfo{{InstanceID: "x", Endpoint: "triage:443"}}}

		endpoint, err := Resolve(context.Background(), d, "triage", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "triage:443", endpoint)
		assert.Equal(t, int32(3), d.calls.Load())
	})

	t.Run("gives up after wait", func(t *testing.T) {
		d := &fakeDiscoverer{readyAt: 1 << 30}

		_, err := Resolve(context.Background(), d, "triage", 300*time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoInstances)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Resolve(ctx, &fakeDiscoverer{err: errors.New("unreachable")}, "triage", time.Minute)
		require.Error(t, err)
	})
}

func TestEndpointsFromEnv(t *testing.T) {
	t.Setenv(EnvEndpoints, "")
	assert.Nil(t, EndpointsFromEnv())

	t.Setenv(EnvEndpoints, " a:2379, ,b:2379 ")
	assert.Equal(t, []string{"a:2379", "b:2379"}, EndpointsFromEnv())
}

func TestNewClient_EmptyEndpoints(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints cannot be empty")
}

func TestBuildKey(t *testing.T) {
	c := &Client{namespace: "aviator"}
	assert.Equal(t, "/aviator/service/triage/abc", c.buildKey(KindService, "triage", "abc"))
}

func TestDecodeInstances(t *testing.T) {
	got := decodeInstances([][]byte{
		[]byte(`{"kind":"service","name":"triage","instance_id":"a","endpoint":"h:1"}`),
		[]byte(`not json`),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "h:1", got[0].Endpoint)
}

func TestTLSConfig(t *testing.T) {
	t.Run("empty uses system roots", func(t *testing.T) {
		conf, err := (&TLSConfig{ServerName: "triage.example.com"}).ClientConfig()
		require.NoError(t, err)
		assert.Nil(t, conf.RootCAs)
		assert.Equal(t, "triage.example.com", conf.ServerName)
	})

	t.Run("cert without key", func(t *testing.T) {
		_, err := (&TLSConfig{CertFile: "c.pem"}).ClientConfig()
		assert.Error(t, err)
	})

	t.Run("missing CA file", func(t *testing.T) {
		_, err := (&TLSConfig{CAFile: filepath.Join(t.TempDir(), "none.pem")}).ClientConfig()
		assert.ErrorContains(t, err, "failed to read CA certificate")
	})

	t.Run("invalid CA", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

		_, err := (&TLSConfig{CAFile: path}).ClientConfig()
		assert.ErrorContains(t, err, "failed to parse CA certificate")
	})
}
