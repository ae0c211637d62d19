package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.normalize())
}

func TestSynchronousAndSamplingAreMutuallyExclusive(t *testing.T) {
	cfg := defaultConfig()
	cfg.Synchronous = true
	cfg.SamplingRate = 0.5
	require.Error(t, cfg.normalize())

	cfg.SamplingRate = 1.0
	require.NoError(t, cfg.normalize())
}

func TestBucketCountMustBePowerOfTwo(t *testing.T) {
	cfg := defaultConfig()
	cfg.BucketCount = 100
	require.Error(t, cfg.normalize())

	cfg.BucketCount = 128
	require.NoError(t, cfg.normalize())
}

func TestMinLogBufferSizeCappedByMax(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinLogBufferSize = cfg.MaxLogBufferSize * 2
	require.Error(t, cfg.normalize())
}

func TestSamplingRateRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.SamplingRate = 1.5
	require.Error(t, cfg.normalize())

	cfg.SamplingRate = -0.1
	require.Error(t, cfg.normalize())
}

func TestEnvOverridesApplied(t *testing.T) {
	t.Setenv("ORTHRUS_NGROUPS", "7")
	t.Setenv("ORTHRUS_SYNCHRONOUS", "true")
	t.Setenv("ORTHRUS_SAMPLING_RATE", "1")

	cfg := defaultConfig()
	applyEnv(&cfg)
	require.NoError(t, cfg.normalize())
	require.Equal(t, 7, cfg.NGroups)
	require.True(t, cfg.Synchronous)
}
