package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =skip,tenant=ledger")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "ledger"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestFromLookup(t *testing.T) {
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"OTEL_EXPORTER_OTLP_INSECURE": "false",
		"OTEL_METRICS_EXPORTER":       "none",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	}
	cfg := fromLookup("ledgerd", "prod", func(key string) string { return env[key] })
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.False(t, cfg.Insecure)
	require.True(t, cfg.Traces)
	require.False(t, cfg.Metrics)
	require.Equal(t, 0.25, cfg.SampleRatio)
}

func TestFromLookupWithoutEndpointIsDisabled(t *testing.T) {
	cfg := fromLookup("ledgerd", "", func(string) string { return "" })
	require.False(t, cfg.Enabled())
	require.True(t, cfg.Insecure)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "ledgerd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}
