package tracing

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
)

func TestInitJaeger(t *testing.T) {
	t.Run("agent", func(t *testing.T) {
		cfg := initJaeger(&JaegerConfig{
			ServiceName:  "ims-filingstack",
			AgentHost:    "jaeger",
			AgentPort:    "6831",
			Enabled:      true,
			SamplerType:  "const",
			SamplerParam: 1,
			Tags:         []string{"environment=staging", " region = eu ", "=orphan", ""},
		})

		assert.Equal(t, "ims-filingstack", cfg.ServiceName)
		assert.False(t, cfg.Disabled)
		assert.Equal(t, "jaeger:6831", cfg.Reporter.LocalAgentHostPort)
		assert.Empty(t, cfg.Reporter.CollectorEndpoint)
		assert.Equal(t, []opentracing.Tag{
			{Key: "environment", Value: "staging"},
			{Key: "region", Value: "eu"},
		}, cfg.Tags)
	})

	t.Run("collector", func(t *testing.T) {
		cfg := initJaeger(&JaegerConfig{Endpoint: "http://collector:14268/api/traces", AgentHost: "jaeger", AgentPort: "6831"})

		assert.True(t, cfg.Disabled)
		assert.Equal(t, "http://collector:14268/api/traces", cfg.Reporter.CollectorEndpoint)
		assert.Empty(t, cfg.Reporter.LocalAgentHostPort)
		assert.Nil(t, cfg.Tags)
	})
}
