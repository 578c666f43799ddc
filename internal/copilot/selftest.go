package copilot

import (
	"fmt"
	"time"

	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/scheduler"
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/pkg/logger"
)

// Result is the outcome of one self-test case.
type Result struct {
	Suite  string `json:"suite"`
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
}

// Failed counts failing results.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

// behaviorRow is one row of the slot decision table.
type behaviorRow struct {
	haveLock, usesGps, usesMsg bool
	runScript                  bool
	disp                       string // "default" means the caller's default
}

var behaviorTable = []behaviorRow{
	{false, false, false, true, "none"},
	{false, false, true, true, "custom"},
	{false, true, false, false, "none"},
	{false, true, true, false, "none"},
	{true, false, false, true, "default"},
	{true, false, true, true, "custom"},
	{true, true, false, true, "default"},
	{true, true, true, true, "custom"},
}

// RunBehaviorSuite checks the slot decision table for both default policies,
// with and without a message definition.
func RunBehaviorSuite(l logger.Logger) []Result {
	var results []Result
	for _, def := range []Disposition{DispositionNone, DispositionDefault} {
		for _, hasDef := range []bool{true, false} {
			for _, row := range behaviorTable {
				want := row.expect(def, hasDef)
				run, disp, _ := decide(row.haveLock, row.usesGps, row.usesMsg, hasDef, def)
				r := Result{
					Suite: "behavior",
					Name: fmt.Sprintf("lock=%v gps=%v msg=%v def=%s hasDef=%v",
						row.haveLock, row.usesGps, row.usesMsg, def, hasDef),
					Pass: run == row.runScript && disp == want,
				}
				if !r.Pass {
					r.Detail = fmt.Sprintf("got run=%v %s, want run=%v %s", run, disp, row.runScript, want)
				}
				results = append(results, r)
			}
		}
	}
	logResults(l, "behavior", results)
	return results
}

func (row behaviorRow) expect(def Disposition, hasDef bool) Disposition {
	if !hasDef {
		if def == DispositionNone || !row.haveLock {
			return DispositionNone
		}
		return DispositionDefault
	}
	switch row.disp {
	case "custom":
		return DispositionCustom
	case "default":
		return def
	}
	return DispositionNone
}

// RunCalcSuite checks that window starts land on second 1 of the start minute
// and never more than one decade out. The full sweep covers every second of
// an hour for every start minute; otherwise a handful of edges are checked.
func RunCalcSuite(l logger.Logger, fullSweep bool) []Result {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var offsets []time.Duration
	if fullSweep {
		for s := 0; s < 3600; s++ {
			offsets = append(offsets, time.Duration(s)*time.Second, time.Duration(s)*time.Second+999*time.Millisecond)
		}
	} else {
		for _, m := range []int{0, 4, 9, 10, 59} {
			for _, s := range []int{0, 1, 2, 59} {
				offsets = append(offsets, time.Duration(m)*time.Minute+time.Duration(s)*time.Second)
			}
		}
		offsets = append(offsets, 59*time.Minute+59*time.Second+999*time.Millisecond)
	}

	var results []Result
	for start := 0; start < 10; start++ {
		bad := 0
		var detail string
		for _, off := range offsets {
			at := base.Add(off)
			fix := gps.FixFromTime(at, gps.Quality3DPlus)
			ms := windowOffsetMs(start, fix)
			got := at.Add(time.Duration(ms) * time.Millisecond)
			if ms <= 0 || ms > DecadeMs || got.Minute()%10 != start || got.Second() != 1 || got.Nanosecond() != 0 {
				bad++
				if detail == "" {
					detail = fmt.Sprintf("fix %s gives offset %d ms (%s)", fix.DateTime(), ms, got.Format("15:04:05.000"))
				}
			}
		}
		results = append(results, Result{
			Suite:  "calc",
			Name:   fmt.Sprintf("start minute %d, %d fixes", start, len(offsets)),
			Pass:   bad == 0,
			Detail: detail,
		})
	}
	logResults(l, "calc", results)
	return results
}

// Scenario is an end-to-end window run with every slot staged alike.
type Scenario struct {
	Name          string
	HaveLock      bool
	HasDefinition bool
	UsesGps       bool
	UsesMsg       bool
	// Expect must appear in the window's marks in order.
	Expect []string
}

// Scenarios are the standard schedule checks.
var Scenarios = []Scenario{
	{
		Name: "A", HaveLock: true,
		Expect: []string{
			MarkJsExec, MarkSendRegular,
			MarkJsExec, MarkSendBasic,
			MarkJsExec, MarkTxDisableGpsEnable, MarkSendNoMsgNone,
			MarkJsExec, MarkSendNoMsgNone,
			MarkJsExec, MarkSendNoMsgNone,
		},
	},
	{
		Name: "B", HaveLock: false,
		Expect: []string{
			MarkJsExec, MarkTxDisableGpsEnable,
			MarkSendNoMsgNone, MarkJsExec,
			MarkSendNoMsgNone, MarkJsExec,
			MarkSendNoMsgNone, MarkJsExec,
			MarkSendNoMsgNone, MarkJsExec,
			MarkSendNoMsgNone,
		},
	},
	{
		Name: "C", HaveLock: true, HasDefinition: true, UsesGps: true, UsesMsg: true,
		Expect: []string{
			MarkJsExec, MarkSendCustom,
			MarkJsExec, MarkSendCustom,
			MarkJsExec, MarkSendCustom,
			MarkJsExec, MarkSendCustom,
			MarkJsExec, MarkSendCustom,
			MarkTxDisableGpsEnable, MarkWindowEnd,
		},
	},
	{
		Name: "D", HaveLock: false, HasDefinition: true, UsesGps: true, UsesMsg: true,
		Expect: []string{
			MarkJsNoExec, MarkTxDisableGpsEnable,
			MarkSendNoMsgNone, MarkJsNoExec,
			MarkSendNoMsgNone, MarkJsNoExec,
			MarkSendNoMsgNone, MarkJsNoExec,
			MarkSendNoMsgNone, MarkJsNoExec,
			MarkSendNoMsgNone,
		},
	},
}

// Stager writes a slot's message definition and script for a scenario.
type Stager interface {
	StageSlot(slot string, hasDefinition, usesGps, usesMsg bool) error
}

// ScenarioDeps are the real collaborators a scenario runs against. Radio,
// clock, GPS and transport are always faked.
type ScenarioDeps struct {
	Stager Stager
	Engine ScriptEngine
	Defs   MessageDefs
	Logger logger.Logger
}

// SelfTestFix is the crafted lock the schedule checks start from.
const SelfTestFix = "2025-01-01 12:09:50.000"

// RunScenario stages every slot, delivers the crafted lock and runs one
// compressed window on virtual time.
func RunScenario(sc Scenario, d ScenarioDeps) Result {
	res := Result{Suite: "schedule", Name: sc.Name}
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	for k := 1; k <= NumSlots; k++ {
		if err := d.Stager.StageSlot(SlotName(k), sc.HasDefinition, sc.UsesGps, sc.UsesMsg); err != nil {
			res.Detail = fmt.Sprintf("stage %s: %v", SlotName(k), err)
			return res
		}
	}

	q := gps.Quality3DPlus
	if !sc.HaveLock {
		q = gps.QualityTimeOnly
	}
	fix, err := gps.ParseDateTime(SelfTestFix, q)
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	cfg := DefaultConfig()
	cfg.Compressed = true
	cfg.TestMode = true
	clock := systime.NewFake(1_000_000)
	queue := scheduler.NewQueue()
	c := New(cfg, Deps{
		Engine: d.Engine,
		Defs:   d.Defs,
		Time:   clock,
		Queue:  queue,
		Logger: d.Logger,
	})

	id := "test.sched." + sc.Name
	c.CreateMarkList(id)
	defer c.DestroyMarkList(id)

	c.OnGpsLock(fix)
	scheduler.RunUntil(queue, clock, c.periodStartUs(NumSlots)+1)

	marks := c.GetMarkList(id)
	ok, missing := timeline.ContainsSubsequence(marks, sc.Expect)
	res.Pass = ok
	if !ok {
		res.Detail = fmt.Sprintf("mark #%d %s not found in order", missing, sc.Expect[missing])
	}
	return res
}

// RunScheduleSuite runs every scenario.
func RunScheduleSuite(d ScenarioDeps) []Result {
	var results []Result
	for _, sc := range Scenarios {
		results = append(results, RunScenario(sc, d))
	}
	if d.Logger != nil {
		logResults(d.Logger, "schedule", results)
	}
	return results
}

func logResults(l logger.Logger, suite string, results []Result) {
	for _, r := range results {
		if r.Pass {
			continue
		}
		l.Warning("%s: FAIL %s: %s", suite, r.Name, r.Detail)
	}
	l.Info("%s: %d/%d passed", suite, len(results)-Failed(results), len(results))
}
