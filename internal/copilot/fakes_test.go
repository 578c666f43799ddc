package copilot

import (
	"testing"
	"time"

	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/scheduler"
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

type scriptFlags struct {
	usesGps bool
	usesMsg bool
	fails   bool
}

type fakeEngine struct {
	slots map[string]scriptFlags
	runs  []string
	// onRun observes the radio state while a script runs
	onRun func()
}

func (e *fakeEngine) UsesGpsApi(slot string) bool     { return e.slots[slot].usesGps }
func (e *fakeEngine) UsesMessageApi(slot string) bool { return e.slots[slot].usesMsg }
func (e *fakeEngine) Run(slot string, _ gps.Fix) bool {
	e.runs = append(e.runs, slot)
	if e.onRun != nil {
		e.onRun()
	}
	return !e.slots[slot].fails
}

type fakeDefs map[string]bool

func (d fakeDefs) HasDefinition(slot string) bool { return d[slot] }

type sendCall struct {
	kind        string
	quitAfterMs uint32
}

type fakeTransport struct {
	calls []sendCall
	// err is returned from every send
	err error
}

func (t *fakeTransport) SendRegularTelemetry(q uint32) error {
	t.calls = append(t.calls, sendCall{"regular", q})
	return t.err
}

func (t *fakeTransport) SendBasicTelemetry(q uint32) error {
	t.calls = append(t.calls, sendCall{"basic", q})
	return t.err
}

func (t *fakeTransport) SendCustomMessage(slot string, q uint32) error {
	t.calls = append(t.calls, sendCall{"custom:" + slot, q})
	return t.err
}

type fakeRadio struct {
	active bool
	log    []string
}

func (r *fakeRadio) IsActive() bool { return r.active }

func (r *fakeRadio) StartWarmup() {
	r.active = true
	r.log = append(r.log, "warmup")
}

func (r *fakeRadio) Stop() {
	r.active = false
	r.log = append(r.log, "stop")
}

type fakeClock struct{ log []string }

func (c *fakeClock) GoHighSpeed() { c.log = append(c.log, "high") }
func (c *fakeClock) GoLowSpeed()  { c.log = append(c.log, "low") }

type fakeGPS struct {
	requests int
	onReq    func()
}

func (g *fakeGPS) RequestNewLock() {
	g.requests++
	if g.onReq != nil {
		g.onReq()
	}
}

type fakeObserver struct {
	marks   []timeline.Entry
	reports []Report
}

func (o *fakeObserver) OnMark(_ string, e timeline.Entry) { o.marks = append(o.marks, e) }
func (o *fakeObserver) OnWindowReport(r Report)           { o.reports = append(o.reports, r) }

// harness is a Copilot on virtual time with every capability faked.
type harness struct {
	c         *Copilot
	clock     *systime.Fake
	q         *scheduler.Queue
	engine    *fakeEngine
	defs      fakeDefs
	transport *fakeTransport
	radio     *fakeRadio
	cpu       *fakeClock
	gps       *fakeGPS
	obs       *fakeObserver
	log       *logger.MockLogger
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clock:     systime.NewFake(1_000_000),
		q:         scheduler.NewQueue(),
		engine:    &fakeEngine{slots: map[string]scriptFlags{}},
		defs:      fakeDefs{},
		transport: &fakeTransport{},
		radio:     &fakeRadio{},
		cpu:       &fakeClock{},
		gps:       &fakeGPS{},
		obs:       &fakeObserver{},
		log:       logger.NewMockLogger(),
	}
	h.c = New(cfg, Deps{
		GPS:       h.gps,
		Radio:     h.radio,
		Clock:     h.cpu,
		Transport: h.transport,
		Engine:    h.engine,
		Defs:      h.defs,
		Time:      h.clock,
		Queue:     h.q,
		Logger:    h.log,
		Observer:  h.obs,
	})
	return h
}

// allSlots stages every slot the same way.
func (h *harness) allSlots(hasDef bool, f scriptFlags) {
	for k := 1; k <= NumSlots; k++ {
		h.engine.slots[SlotName(k)] = f
		h.defs[SlotName(k)] = hasDef
	}
}

func mustFix(t *testing.T, s string, q gps.Quality) gps.Fix {
	t.Helper()
	f, err := gps.ParseDateTime(s, q)
	if err != nil {
		t.Fatalf("ParseDateTime(%q): %v", s, err)
	}
	return f
}

// runWindow drives the queue until just past the window's end.
func (h *harness) runWindow() {
	end := h.c.periodStartUs(NumSlots)
	scheduler.RunUntil(h.q, h.clock, end+1)
}

func (h *harness) advance(d time.Duration) {
	scheduler.RunUntil(h.q, h.clock, h.clock.NowUs()+uint64(d.Microseconds()))
}

func names(entries []timeline.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func assertSubsequence(t *testing.T, entries []timeline.Entry, want []string) {
	t.Helper()
	if ok, missing := timeline.ContainsSubsequence(entries, want); !ok {
		t.Fatalf("mark %q (#%d) not found in order\nwant: %v\ngot:  %v", want[missing], missing, want, names(entries))
	}
}

func count(entries []timeline.Entry, name string) int {
	n := 0
	for _, e := range entries {
		if e.Name == name {
			n++
		}
	}
	return n
}
