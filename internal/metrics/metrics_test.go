package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveMerge(t *testing.T) {
	m := New()

	m.ObserveMerge("newer", 3, 1, 0)
	m.ObserveMerge("newer", 2, 0, 1)
	m.ObserveMerge("older", 5, 0, 0)

	require.Equal(t, 5.0, testutil.ToFloat64(m.admitted.WithLabelValues("newer")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.admitted.WithLabelValues("older")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.duplicates.WithLabelValues("newer")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("newer")))
}

func TestObserveFetchCountsFailures(t *testing.T) {
	m := New()

	m.ObserveFetch("older", 20*time.Millisecond, nil)
	m.ObserveFetch("older", time.Second, errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("older")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveMerge("newer", 1, 1, 1)
	m.ObserveFetch("newer", time.Millisecond, errors.New("x"))
	m.PollSkipped()
	m.SetListSize("t1", 4)
	m.ForgetThread("t1")
	require.Nil(t, m.Registry())
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.PollSkipped()
	m.SetListSize("t1", 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "dmsync_poll_ticks_skipped_total 1"))
	require.True(t, strings.Contains(body, `dmsync_canonical_list_size{thread="t1"} 7`))
}
