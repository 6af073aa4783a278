package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIngestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngest(reg)

	m.Heights.Inc()
	m.Actions.WithLabelValues("swap").Add(3)
	m.TaskFailures.WithLabelValues("primary").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Heights))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Actions.WithLabelValues("swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskFailures.WithLabelValues("primary")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
