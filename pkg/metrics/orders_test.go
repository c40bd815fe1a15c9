package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncCreated("PHONEPE")
	m.IncCreated("PHONEPE")
	m.IncReconciliation("SUCCESS", true)
	m.IncReconciliation("SUCCESS", false)
	m.IncNotification("order_confirmation", false)
	m.ObserveProvider("phonepe", "initiate", 120*time.Millisecond)
	m.IncDropped("delivery_staff-9")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "saffron_orders_created_total", "method", "PHONEPE")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "saffron_payment_reconciliations_total", "applied", "false")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "saffron_notifications_total", "result", "failure")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "saffron_realtime_events_dropped_total", "room", "delivery")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	sum, err := fetchHistogramSum(mfs, "saffron_provider_request_duration_seconds", "provider", "phonepe")
	require.NoError(t, err)
	assert.Greater(t, sum, float64(0))
}

func TestNilOrderMetricsAreSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncCreated("COD")
	m.IncReconciliation("FAILED", true)
	m.IncNotification("x", true)
	m.ObserveProvider("whatsapp", "send", time.Second)
	m.IncDropped("kitchen_staff")

	NewOrderMetrics(nil).IncCreated("COD")
}
