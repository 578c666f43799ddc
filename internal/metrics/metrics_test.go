package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/timeline"
)

func TestMetrics_CountsMarks(t *testing.T) {
	m := New()
	m.OnMark("w1", timeline.Entry{Name: copilot.MarkJsExec})
	m.OnMark("w1", timeline.Entry{Name: copilot.MarkJsExec})
	m.OnMark("w1", timeline.Entry{Name: copilot.MarkSendBasic})

	if got := testutil.ToFloat64(m.marks.WithLabelValues(copilot.MarkJsExec)); got != 2 {
		t.Errorf("JS_EXEC = %v", got)
	}
	if got := testutil.ToFloat64(m.marks.WithLabelValues(copilot.MarkSendBasic)); got != 1 {
		t.Errorf("SEND_BASIC_TELEMETRY = %v", got)
	}
}

func TestMetrics_WindowReport(t *testing.T) {
	m := New()
	m.OnWindowReport(copilot.Report{
		HaveGpsLock: true,
		Slots: []copilot.SlotSummary{
			{Slot: "slot1", Disposition: "default", ScriptRanOk: true},
			{Slot: "slot2", Disposition: "none"},
		},
		Marks: make([]timeline.Entry, 7),
	})
	m.OnWindowReport(copilot.Report{})

	if got := testutil.ToFloat64(m.windows.WithLabelValues("true")); got != 1 {
		t.Errorf("locked windows = %v", got)
	}
	if got := testutil.ToFloat64(m.windows.WithLabelValues("false")); got != 1 {
		t.Errorf("unlocked windows = %v", got)
	}
	if got := testutil.ToFloat64(m.haveLock); got != 0 {
		t.Errorf("gps_lock = %v after an unlocked window", got)
	}
	if got := testutil.ToFloat64(m.slotResults.WithLabelValues("slot1", "default", "true")); got != 1 {
		t.Errorf("slot1 result = %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.OnMark("w1", timeline.Entry{Name: copilot.MarkWindowEnd})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `copilot_marks_total{mark="WINDOW_END"} 1`) {
		t.Errorf("metrics output missing mark counter:\n%s", body)
	}
}
