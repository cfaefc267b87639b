package observability

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleDone(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ExampleDone("ok", 2, false)
	m.ExampleDone("ok", 1, true)
	m.ExampleDone("lookup", 0, true)

	expected := `
		# HELP rageval_examples_total Total number of examples processed by outcome
		# TYPE rageval_examples_total counter
		rageval_examples_total{outcome="lookup"} 1
		rageval_examples_total{outcome="ok"} 2
	`
	require.NoError(t, testutil.CollectAndCompare(m.Examples, strings.NewReader(expected)))

	// failed examples do not count as hard
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HardExamples))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvidenceSize))
}

func TestAdapterCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AdapterCall("scorer", 20*time.Millisecond, nil)
	m.AdapterCall("scorer", 30*time.Millisecond, errors.New("oom"))
	m.AdapterCall("generator", time.Second, nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.AdapterDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterErrors.WithLabelValues("scorer")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AdapterErrors.WithLabelValues("generator")))
}
