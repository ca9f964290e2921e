package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordNotification(t *testing.T) {
	before := testutil.ToFloat64(NotificationsTotal.WithLabelValues("contract", "delivered"))
	RecordNotification("contract", "delivered")
	RecordNotification("contract", "delivered")
	assert.Equal(t, before+2, testutil.ToFloat64(NotificationsTotal.WithLabelValues("contract", "delivered")))
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("email", "failed"))
	RecordDelivery("email", "failed", 0.2)
	assert.Equal(t, before+1, testutil.ToFloat64(DeliveriesTotal.WithLabelValues("email", "failed")))
}

func TestRecordHTTPServerRequestKeepsClientSeparate(t *testing.T) {
	client := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "200"))
	server := testutil.ToFloat64(HTTPServerRequestsTotal.WithLabelValues("GET", "/get_messages", "200"))

	RecordHTTPServerRequest("GET", "/get_messages", "200", 0.01)

	assert.Equal(t, client, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, server+1, testutil.ToFloat64(HTTPServerRequestsTotal.WithLabelValues("GET", "/get_messages", "200")))
}

func TestRecordSchedulerRun(t *testing.T) {
	runs := testutil.ToFloat64(SchedulerRunsTotal.WithLabelValues("success"))
	flips := testutil.ToFloat64(ImportanceFlipsTotal)

	RecordSchedulerRun("success", 3)
	RecordSchedulerRun("success", 0)

	assert.Equal(t, runs+2, testutil.ToFloat64(SchedulerRunsTotal.WithLabelValues("success")))
	assert.Equal(t, flips+3, testutil.ToFloat64(ImportanceFlipsTotal))
}

func TestRecordKafkaPublish(t *testing.T) {
	before := testutil.ToFloat64(KafkaMessagesPublished.WithLabelValues("notifications", "error"))
	RecordKafkaPublish("notifications", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(KafkaMessagesPublished.WithLabelValues("notifications", "error")))
}
