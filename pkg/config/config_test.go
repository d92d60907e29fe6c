package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sranges/pkg/birthdeath"
	"github.com/Sumatoshi-tech/sranges/pkg/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sranges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, `
chain:
  length: 5000
  chains: 4
operators:
  jump: 0
model:
  parameterization: fbd
  diversification: 1
  turnover: 0.5
  sampling_proportion: 0.2
  origin: 4
  condition_on_sampling: true
output:
  compress: true
  checkpoint_format: gob
`))
	require.NoError(t, err)

	assert.Equal(t, int64(5000), cfg.Chain.Length)
	assert.Equal(t, 4, cfg.Chain.Chains)
	assert.Equal(t, int64(config.DefaultLogEvery), cfg.Chain.LogEvery)
	assert.Zero(t, cfg.Operators.Jump)
	assert.InDelta(t, config.DefaultWBWeight, cfg.Operators.WilsonBalding, 0)
	assert.True(t, cfg.Output.Compress)

	params, err := cfg.ModelParams()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, params.Birth, 1e-12)
	assert.InDelta(t, 1.0, params.Death, 1e-12)
	assert.True(t, params.ConditionOnSampling)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SRANGES_CHAIN_SEED", "99")
	t.Setenv("SRANGES_MODEL_BIRTH", "2.5")

	cfg, err := config.LoadConfig(writeConfig(t, "chain:\n  seed: 3\n"))
	require.NoError(t, err)

	assert.Equal(t, int64(99), cfg.Chain.Seed)
	assert.InDelta(t, 2.5, cfg.Model.Birth, 0)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "length", body: "chain:\n  length: 0\n", want: config.ErrInvalidLength},
		{name: "interval", body: "chain:\n  sample_every: -1\n", want: config.ErrInvalidInterval},
		{name: "chains", body: "chain:\n  chains: 0\n", want: config.ErrInvalidChains},
		{
			name: "weights",
			body: "operators:\n  swap: 0\n  jump: 0\n  wilson_balding: 0\n",
			want: config.ErrInvalidWeights,
		},
		{name: "negative weight", body: "operators:\n  swap: -1\n", want: config.ErrInvalidWeights},
		{name: "log format", body: "logging:\n  format: xml\n", want: config.ErrInvalidLogFormat},
		{name: "checkpoint format", body: "output:\n  checkpoint_format: xml\n", want: config.ErrInvalidFormat},
		{name: "model", body: "model:\n  birth: -1\n", want: birthdeath.ErrInvalidParams},
		{name: "parameterization", body: "model:\n  parameterization: skyline\n", want: birthdeath.ErrUnknownParameterization},
		{name: "sample ratio", body: "telemetry:\n  trace_sample_ratio: 1.5\n", want: config.ErrInvalidRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_Telemetry(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, `
telemetry:
  otlp_endpoint: collector:4317
  otlp_headers: "authorization=Bearer abc, x-tenant=lab"
  trace_sample_ratio: 0.25
`))
	require.NoError(t, err)

	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "authorization=Bearer abc, x-tenant=lab", cfg.Telemetry.OTLPHeaders)
	assert.InDelta(t, 0.25, cfg.Telemetry.TraceSampleRatio, 0)
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "chain: [unclosed\n"))
	require.Error(t, err)
}

func TestWriteExample_LoadsBackAsDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, config.WriteExample(&buf))
	assert.Contains(t, buf.String(), "wilson_balding: 3")

	cfg, err := config.LoadConfig(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
