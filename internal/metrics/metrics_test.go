package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/store"
)

func TestSetUnitsRunningExposesGaugeByKind(t *testing.T) {
	m := New()
	m.SetUnitsRunning(store.KindSpec, 3)

	got := testutil.ToFloat64(m.unitsRunning.WithLabelValues(string(store.KindSpec)))
	if got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestAddReapedIncrementsByKindAndStatus(t *testing.T) {
	m := New()
	m.AddReaped(store.KindPhase, store.StatusComplete)
	m.AddReaped(store.KindPhase, store.StatusComplete)
	m.AddReaped(store.KindPhase, store.StatusFailed)

	if got := testutil.ToFloat64(m.unitsReaped.WithLabelValues(string(store.KindPhase), string(store.StatusComplete))); got != 2 {
		t.Fatalf("expected 2 complete, got %v", got)
	}
	if got := testutil.ToFloat64(m.unitsReaped.WithLabelValues(string(store.KindPhase), string(store.StatusFailed))); got != 1 {
		t.Fatalf("expected 1 failed, got %v", got)
	}
}

func TestObserveTickRecordsIntoHistogram(t *testing.T) {
	m := New()
	m.ObserveTick(5 * time.Millisecond)

	if got := testutil.CollectAndCount(m.tickDuration); got != 1 {
		t.Fatalf("expected 1 observation, got %d", got)
	}
}

func TestSampleRateLimitReflectsCoordinatorState(t *testing.T) {
	m := New()
	c := ratelimit.New(ratelimit.DefaultConfig())

	m.SampleRateLimit(c)
	if got := testutil.ToFloat64(m.rateLimitBackoffActive); got != 0 {
		t.Fatalf("expected no backoff initially, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimitAdmissionAllowed); got != 1 {
		t.Fatalf("expected admission allowed initially, got %v", got)
	}

	c.RecordRateLimit(time.Minute)
	m.SampleRateLimit(c)
	if got := testutil.ToFloat64(m.rateLimitBackoffActive); got != 1 {
		t.Fatalf("expected backoff active after RecordRateLimit, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimitConsecutiveHits); got != 1 {
		t.Fatalf("expected 1 consecutive hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimitAdmissionAllowed); got != 0 {
		t.Fatalf("expected admission disallowed during backoff, got %v", got)
	}
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.SetUnitsRunning(store.KindPlan, 1)
	m.ObserveTick(time.Second)
	m.AddAdmitted(1)
	m.AddSpawned(store.KindPlan, 1)
	m.AddReaped(store.KindPlan, store.StatusComplete)
	m.SampleRateLimit(ratelimit.New(ratelimit.DefaultConfig()))

	if m.Registry() != nil {
		t.Fatal("expected nil registry from nil Metrics")
	}

	rec := newNilHandlerRecorder(t)
	m.Handler().ServeHTTP(rec, nil)
	if rec.code != 503 {
		t.Fatalf("expected 503 from nil Metrics handler, got %d", rec.code)
	}
}

// nilHandlerRecorder is a minimal http.ResponseWriter, avoiding a direct
// net/http/httptest dependency for this one status-code assertion.
type nilHandlerRecorder struct {
	code int
}

func newNilHandlerRecorder(t *testing.T) *nilHandlerRecorder {
	t.Helper()
	return &nilHandlerRecorder{}
}

func (r *nilHandlerRecorder) Header() http.Header         { return http.Header{} }
func (r *nilHandlerRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (r *nilHandlerRecorder) WriteHeader(code int)        { r.code = code }
