package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEpochCounts(t *testing.T) {
	before := testutil.ToFloat64(messagesUniqueTotal)
	beforeObserved := testutil.ToFloat64(messagesObservedTotal)

	ObserveEpoch(10, 4, 150*time.Millisecond)

	if got := testutil.ToFloat64(messagesUniqueTotal) - before; got != 4 {
		t.Errorf("expected 4 unique messages, got %f", got)
	}
	if got := testutil.ToFloat64(messagesObservedTotal) - beforeObserved; got != 10 {
		t.Errorf("expected 10 observed messages, got %f", got)
	}
}

func TestObserveSessionAndJob(t *testing.T) {
	before := testutil.ToFloat64(sessionsTotal.WithLabelValues("failed"))
	ObserveSession("failed")
	if got := testutil.ToFloat64(sessionsTotal.WithLabelValues("failed")) - before; got != 1 {
		t.Errorf("expected one failed session, got %f", got)
	}

	beforeJobs := testutil.ToFloat64(jobsTotal.WithLabelValues("exhausted"))
	ObserveJob("exhausted", 8)
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("exhausted")) - beforeJobs; got != 1 {
		t.Errorf("expected one exhausted job, got %f", got)
	}
}

func TestSetTrackedWorkers(t *testing.T) {
	SetTrackedWorkers(3)
	if got := testutil.ToFloat64(trackedWorkers); got != 3 {
		t.Errorf("expected gauge 3, got %f", got)
	}
	SetTrackedWorkers(0)
	if got := testutil.ToFloat64(trackedWorkers); got != 0 {
		t.Errorf("expected gauge 0, got %f", got)
	}
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	ObserveAdjustmentFailure("mute")

	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "chatcrawler_adjustment_failures_total") {
		t.Fatalf("expected adjustment counter in exposition output")
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); got < 1 {
		t.Errorf("expected middleware to count requests, got %f", got)
	}
}
