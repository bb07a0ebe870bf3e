package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kswitchd/internal/daemon"
	"kswitchd/internal/layout"
	"kswitchd/internal/store"
)

func TestCorrectionCounters(t *testing.T) {
	m := New("test")

	m.CorrectionApplied(store.KindWord, "layout")
	m.CorrectionApplied(store.KindWord, "layout")
	m.CorrectionApplied(store.KindPhrase, "")
	m.CorrectionSkipped("low_confidence")
	m.CorrectionTimedOut()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.correctionsTotal.WithLabelValues("word", "layout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.correctionsTotal.WithLabelValues("phrase", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedTotal.WithLabelValues("low_confidence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.timeoutsTotal))
}

func TestStateGaugeIsOneHot(t *testing.T) {
	m := New("test")

	m.StateChanged(daemon.StateIdle)
	m.StateChanged(daemon.StateHandoff)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("handoff")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateTransitions.WithLabelValues("idle")))
}

func TestLayoutRequestsAndDuration(t *testing.T) {
	m := New("test")

	m.LayoutRequested(layout.RU)
	m.CorrectionDuration(3 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.layoutRequests.WithLabelValues("ru")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.correctionDuration))
}

func TestStatusCollector(t *testing.T) {
	c := NewStatusCollector(func() daemon.Status {
		return daemon.Status{Enabled: true, UndoDepth: 3, PhraseWords: 2, Suppressed: 1, Threshold: 0.5}
	})

	expected := `
# HELP kswitchd_undo_depth Entries on the undo stack.
# TYPE kswitchd_undo_depth gauge
kswitchd_undo_depth 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "kswitchd_undo_depth"))
	assert.Equal(t, 5, testutil.CollectAndCount(c))
}

func TestHandlerExposition(t *testing.T) {
	m := New("1.2.3")
	m.CorrectionApplied(store.KindUndo, "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `kswitchd_build_info{version="1.2.3"} 1`)
	assert.Contains(t, text, `kswitchd_corrections_total{kind="undo",strategy="none"} 1`)
	assert.Contains(t, text, "kswitchd_uptime_seconds")
}
