package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/healthz", "2xx")
		IncGRPC("/studio.availability.v1.AvailabilityService/ListSlots", "OK")
		IncAppointmentCreated()
		IncNotification("new_appointment", "ok")
		IncSyncTask("completed")
		IncBotUpdate("command", "ok")
		ObserveBotUpdate(0.01)
	})
}

func TestCollectionErrorCounter(t *testing.T) {
	before := counterValue(t, collectionErrors.WithLabelValues("appointments", "list"))
	IncCollectionError("appointments", "list")
	assert.Equal(t, before+1, counterValue(t, collectionErrors.WithLabelValues("appointments", "list")))

	before = counterValue(t, appointmentTransitions.WithLabelValues("approved"))
	IncAppointmentTransition("approved")
	assert.Equal(t, before+1, counterValue(t, appointmentTransitions.WithLabelValues("approved")))
}
