package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCacheCounters(t *testing.T) {
	before := counterValue(t, CacheLookups.WithLabelValues("steadiness", "hit"))
	CacheHit("steadiness")
	CacheHit("steadiness")
	CacheMiss("steadiness")

	if got := counterValue(t, CacheLookups.WithLabelValues("steadiness", "hit")) - before; got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	PeriodsAppended.Inc()
	ObserveQuery("forecast", time.Now())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{"steady_periods_appended_total", "steady_query_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
