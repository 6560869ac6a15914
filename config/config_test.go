package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/allocation"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
result_tag:
  name: Analysis
limits:
  max_per_category: 100
require_source: false
exclusion_rule: finding.analyzer == "configuration"
triage:
  address: aviator.example.com:443
  timeout: 30m
  discovery:
    endpoints: ["localhost:2379"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aviator.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Analysis", cfg.ResultTag.Name)
	assert.Equal(t, allocation.Limits{MaxPerCategory: 100, MaxTotal: 2500}, cfg.GetLimits())
	assert.False(t, cfg.GetRequireSource())
	assert.Equal(t, `finding.analyzer == "configuration"`, cfg.ExclusionRule)
	assert.Equal(t, TransportGRPC, cfg.Triage.GetTransport())
	assert.Equal(t, 30*time.Minute, cfg.Triage.GetTimeout())
	assert.Equal(t, DefaultKeepaliveInterval, cfg.Triage.GetKeepaliveInterval())
	assert.Equal(t, "aviator", cfg.Triage.Discovery.GetNamespace())
	assert.Equal(t, "triage", cfg.Triage.Discovery.GetService())
	assert.Equal(t, DefaultDiscoveryWait, cfg.Triage.Discovery.GetWait())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.Error(t, err, "directory without aviator.yaml")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [1"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestNilDefaults(t *testing.T) {
	var cfg *Config
	assert.Equal(t, allocation.DefaultLimits(), cfg.GetLimits())
	assert.True(t, cfg.GetRequireSource())

	var triage *TriageConfig
	assert.Equal(t, TransportGRPC, triage.GetTransport())
	assert.Equal(t, 8*time.Hour+20*time.Minute, triage.GetTimeout())

	var q *QueueConfig
	assert.Equal(t, "aviator", q.GetPrefix())
	assert.Equal(t, DefaultConnectTimeout, q.GetConnectTimeout())

	var tel *TelemetryConfig
	assert.Equal(t, "aviator-audit", tel.GetServiceName())
	assert.Equal(t, "none", tel.GetExporter())

	bad := &TriageConfig{Timeout: "soon"}
	assert.Equal(t, DefaultTimeout, bad.GetTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"empty", "", false},
		{"grpc without address", "triage: {transport: grpc}", true},
		{"queue without url", "triage: {transport: queue}", true},
		{"queue with url", "triage: {transport: queue, queue: {url: 'redis://localhost:6379'}}", false},
		{"unknown transport", "triage: {transport: carrier-pigeon, address: x}", true},
		{"discovery without endpoints", "triage: {discovery: {service: triage}}", true},
		{"negative limits", "limits: {max_total: -1}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultTagMapping(t *testing.T) {
	m := DefaultTagMapping()
	assert.Equal(t, "87f2364f-dcd4-49e6-861d-f8d3f351686b", m.TagID)

	assert.Equal(t, TagResult{Value: "Not an Issue", Suppress: true}, m.Result(true, OutcomeFP))
	assert.Equal(t, TagResult{Value: "Not an Issue"}, m.Result(false, OutcomeFP))
	assert.Equal(t, TagResult{Value: "Exploitable"}, m.Result(true, OutcomeTP))
	assert.Equal(t, TagResult{}, m.Result(false, OutcomeUnsure))
	assert.Equal(t, TagResult{}, m.Result(false, "something else"))
}

func TestLoadTagMapping(t *testing.T) {
	t.Run("empty path uses built-in", func(t *testing.T) {
		m, err := LoadTagMapping("")
		require.NoError(t, err)
		assert.Equal(t, DefaultTagMapping(), m)
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tag_id: custom-tag
mapping:
  tier_1:
    tp: {value: Remediation Required}
  tier_2:
    tp: {value: Suspicious}
    fp: {value: Proposed Not an Issue, suppress: true}
`), 0o644))

		m, err := LoadTagMapping(path)
		require.NoError(t, err)
		assert.Equal(t, "custom-tag", m.TagID)
		assert.Equal(t, "Remediation Required", m.Result(true, OutcomeTP).Value)
		assert.Equal(t, TagResult{Value: "Proposed Not an Issue", Suppress: true}, m.Result(false, OutcomeFP))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTagMapping(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, aviator.IsSimple(err))
		assert.ErrorIs(t, err, aviator.ErrTagMapping)
	})

	t.Run("missing tag id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mapping: {}"), 0o644))

		_, err := LoadTagMapping(path)
		require.Error(t, err)
		assert.True(t, aviator.IsSimple(err))
		assert.ErrorIs(t, err, aviator.ErrTagMapping)
	})
}
