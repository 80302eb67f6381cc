package metrics_test

import (
	"errors"
	"testing"

	"github.com/omochice/chatstream/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Dials.Inc()
	m.Turns.WithLabelValues("user").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["chatstream_dials_total"])
	assert.True(t, names["chatstream_turns_total"])
}

func TestRecordSend(t *testing.T) {
	m := metrics.Discard()

	m.RecordSend(nil)
	m.RecordSend(nil)
	m.RecordSend(errors.New("broken pipe"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sends.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sends.WithLabelValues("error")))
}

func TestSetConnected(t *testing.T) {
	m := metrics.Discard()

	m.SetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))
}
