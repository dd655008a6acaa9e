package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

func TestCountersAreLabelled(t *testing.T) {
	p := NewPrometheusMetricsCollector("esme", nil)

	p.IncCounter(smpp.MetricPDUsSent, map[string]string{"command": "submit_sm"})
	p.IncCounter(smpp.MetricPDUsSent, map[string]string{"command": "submit_sm", "extra": "ignored"})
	p.IncCounter(smpp.MetricStateTransitions, map[string]string{"from": "OPEN"})
	p.IncCounter(smpp.MetricMalformedPDUs, nil)
	p.IncCounter("no_such_metric", nil)

	if v := testutil.ToFloat64(p.pdusSent.WithLabelValues("submit_sm")); v != 2 {
		t.Errorf("pdus_sent{submit_sm} = %v", v)
	}
	if v := testutil.ToFloat64(p.stateTransitions.WithLabelValues("OPEN", "")); v != 1 {
		t.Errorf("state_transitions{OPEN,} = %v", v)
	}
	if v := testutil.ToFloat64(p.malformedPDUs); v != 1 {
		t.Errorf("malformed_pdus = %v", v)
	}
	if n := testutil.CollectAndCount(p.pdusSent); n != 1 {
		t.Errorf("pdus_sent series = %d", n)
	}
}

func TestGaugesAndHistograms(t *testing.T) {
	p := NewPrometheusMetricsCollector("", nil)

	p.SetGauge(smpp.MetricPendingRequests, 3, nil)
	p.SetGauge(MetricSessionState, float64(smpp.StateBoundTRX), nil)
	p.SetGauge(MetricStoredMessages, 7, nil)
	p.RecordDuration(smpp.MetricResponseLatency, 20*time.Millisecond, map[string]string{"command": "submit_sm"})
	p.ObserveHistogram(smpp.MetricResponseLatency, 0.5, map[string]string{"command": "submit_sm"})

	if v := testutil.ToFloat64(p.pendingRequests); v != 3 {
		t.Errorf("pending_requests = %v", v)
	}
	if v := testutil.ToFloat64(p.sessionState); v != float64(smpp.StateBoundTRX) {
		t.Errorf("session_state = %v", v)
	}
	if v := testutil.ToFloat64(p.storedMessages); v != 7 {
		t.Errorf("stored_messages = %v", v)
	}
	if n := testutil.CollectAndCount(p.responseLatency, "response_latency_seconds"); n != 1 {
		t.Errorf("latency series = %d", n)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	p := NewPrometheusMetricsCollector("esme", nil)
	p.IncCounter(MetricEventsTotal, map[string]string{"event_type": string(smpp.EventTypeBound)})

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `esme_events_total{event_type="session.bound"} 1`) {
		t.Errorf("exposition missing events_total:\n%s", body)
	}
}

func TestStopWithoutServer(t *testing.T) {
	p := NewPrometheusMetricsCollector("esme", nil)
	if err := p.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
