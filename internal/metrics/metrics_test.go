package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tolatables/internal/silo"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.IngestDone("t1", silo.IngestResult{Processed: 3, Inserted: 2, Updated: 1, Skipped: []string{"number=1"}})
	r.IngestDone("t1", silo.IngestResult{Processed: 1, Inserted: 1})
	r.MergeDone(silo.ModeMerge, silo.Result{Status: silo.StatusDanger})
	r.MergeDone(silo.ModeAppend, silo.Result{Status: silo.StatusSuccess})

	assert.Equal(t, 3.0, testutil.ToFloat64(r.ingestRows.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ingestRows.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ingestRows.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.merges.WithLabelValues("merge", "danger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.merges.WithLabelValues("append", "success")))
}

func TestHandlerExposesCounters(t *testing.T) {
	r := New()
	r.MergeDone(silo.ModeMerge, silo.Result{Status: silo.StatusSuccess})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tolatables_merge_total{mode="merge",status="success"} 1`))
}
