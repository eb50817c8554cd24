package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.MessagesProcessed.WithLabelValues("filed").Inc()
	first.MessagesProcessed.WithLabelValues("filed").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(first.MessagesProcessed.WithLabelValues("filed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.MessagesProcessed.WithLabelValues("filed")))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { NewMetrics(reg) })
	assert.Panics(t, func() { NewMetrics(reg) })
}
